package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeExpirer struct {
	errs  []error
	calls int
	at    []time.Time
}

func (f *fakeExpirer) ExpireHolds(ctx context.Context, now time.Time) (int, error) {
	f.calls++
	f.at = append(f.at, now)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	return 2, nil
}

func newTestExpiryWorker(exp *fakeExpirer, retries int) (*HoldExpiryWorker, *[]time.Duration) {
	w := NewHoldExpiryWorker(exp, time.Minute, RetryPolicy{MaxRetries: retries, InitialDelay: time.Second, MaxDelay: 4 * time.Second}, nil)
	fixed := time.Date(2030, 3, 11, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }
	slept := &[]time.Duration{}
	w.sleep = func(ctx context.Context, d time.Duration) bool {
		*slept = append(*slept, d)
		return ctx.Err() == nil
	}
	return w, slept
}

func TestHoldExpiryRunOnce(t *testing.T) {
	exp := &fakeExpirer{}
	w, slept := newTestExpiryWorker(exp, 3)

	if n := w.RunOnce(context.Background()); n != 2 {
		t.Fatalf("expected 2 expired, got %d", n)
	}
	if exp.calls != 1 || len(*slept) != 0 {
		t.Fatalf("expected single call without sleep, got calls=%d sleeps=%v", exp.calls, *slept)
	}
	if !exp.at[0].Equal(time.Date(2030, 3, 11, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected injected clock, got %s", exp.at[0])
	}
}

func TestHoldExpiryRetriesWithBackoff(t *testing.T) {
	exp := &fakeExpirer{errs: []error{errors.New("database is locked"), errors.New("database is locked")}}
	w, slept := newTestExpiryWorker(exp, 3)

	if n := w.RunOnce(context.Background()); n != 2 {
		t.Fatalf("expected success on third attempt, got %d", n)
	}
	if exp.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", exp.calls)
	}
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
		t.Fatalf("unexpected backoff: %v", *slept)
	}
}

func TestHoldExpiryGivesUp(t *testing.T) {
	boom := errors.New("boom")
	exp := &fakeExpirer{errs: []error{boom, boom, boom, boom}}
	w, _ := newTestExpiryWorker(exp, 2)

	if n := w.RunOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0 on failure, got %d", n)
	}
	if exp.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", exp.calls)
	}
}

func TestHoldExpiryStopsOnCancel(t *testing.T) {
	exp := &fakeExpirer{errs: []error{errors.New("boom")}}
	w, _ := newTestExpiryWorker(exp, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.RunOnce(ctx)
	if exp.calls != 1 {
		t.Fatalf("expected no retry after cancel, got %d calls", exp.calls)
	}

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop")
	}
}
