package api

import (
	"sync"
	"time"

	"courtbook/internal/config"

	"golang.org/x/time/rate"
)

const (
	defaultBurst    = 5
	bucketIdleTTL   = 10 * time.Minute
	sweepEveryAdded = 256
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters keeps one token bucket per API key or remote host.
// Buckets idle for bucketIdleTTL are dropped so anonymous callers
// do not grow the table forever.
type clientLimiters struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	added   int
	now     func() time.Time
}

func newClientLimiters(cfg config.APIRateLimitConfig) *clientLimiters {
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &clientLimiters{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(cfg.RPS),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *clientLimiters) allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
		l.buckets[key] = b
		l.added++
		if l.added%sweepEveryAdded == 0 {
			l.sweep(now)
		}
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// sweep must be called with mu held.
func (l *clientLimiters) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > bucketIdleTTL {
			delete(l.buckets, key)
		}
	}
}

func (l *clientLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
