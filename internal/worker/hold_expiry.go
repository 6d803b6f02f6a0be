package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// HoldExpirer cancels held reservations whose hold window has passed.
type HoldExpirer interface {
	ExpireHolds(ctx context.Context, now time.Time) (int, error)
}

// HoldExpiryWorker runs ExpireHolds on a fixed interval. A failed run is
// retried with backoff before waiting for the next tick.
type HoldExpiryWorker struct {
	expirer     HoldExpirer
	interval    time.Duration
	retryPolicy RetryPolicy
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) bool
	logger      *zerolog.Logger
}

func NewHoldExpiryWorker(expirer HoldExpirer, interval time.Duration, retry RetryPolicy, logger *zerolog.Logger) *HoldExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &HoldExpiryWorker{
		expirer:     expirer,
		interval:    interval,
		retryPolicy: retry.withDefaults(3, time.Second, 30*time.Second),
		now:         time.Now,
		sleep:       sleepCtx,
		logger:      logger,
	}
}

// Start ticks until ctx is done.
func (w *HoldExpiryWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("Hold expiry worker started")
	defer w.logger.Info().Msg("Hold expiry worker stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one expiry pass and returns the number of expired holds.
func (w *HoldExpiryWorker) RunOnce(ctx context.Context) int {
	for attempt := 1; ; attempt++ {
		n, err := w.expirer.ExpireHolds(ctx, w.now())
		if err == nil {
			if n > 0 {
				w.logger.Info().Int("expired", n).Msg("Expired stale holds")
			}
			return n
		}
		if w.retryPolicy.Exhausted(attempt) {
			w.logger.Error().Err(err).Int("attempts", attempt).Msg("Hold expiry failed")
			return n
		}

		delay := w.retryPolicy.NextDelay(attempt)
		w.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Hold expiry failed, retrying")
		if !w.sleep(ctx, delay) {
			return n
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
