package api

import (
	"fmt"
	"testing"
	"time"

	"courtbook/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestClientLimiters_Refill(t *testing.T) {
	l := newClientLimiters(config.APIRateLimitConfig{RPS: 1, Burst: 1})
	now := time.Date(2030, 3, 11, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))

	now = now.Add(time.Second)
	assert.True(t, l.allow("a"))
}

func TestClientLimiters_DefaultBurst(t *testing.T) {
	l := newClientLimiters(config.APIRateLimitConfig{RPS: 1})
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < defaultBurst; i++ {
		assert.True(t, l.allow("k"), "request %d", i)
	}
	assert.False(t, l.allow("k"))
}

func TestClientLimiters_SweepsIdleBuckets(t *testing.T) {
	l := newClientLimiters(config.APIRateLimitConfig{RPS: 10, Burst: 10})
	now := time.Date(2030, 3, 11, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < sweepEveryAdded-1; i++ {
		l.allow(fmt.Sprintf("host-%d", i))
	}
	assert.Equal(t, sweepEveryAdded-1, l.size())

	now = now.Add(bucketIdleTTL + time.Minute)
	l.allow("fresh")
	assert.Equal(t, 1, l.size())
}
