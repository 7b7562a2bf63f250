package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiter_PerIPBuckets(t *testing.T) {
	l := newIPRateLimiter(60, 2)
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"), "other clients keep their own bucket")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("1.1.1.1"), "one token refills per second at 60/min")
}

func TestIPRateLimiter_Disabled(t *testing.T) {
	l := newIPRateLimiter(0, 1)
	for i := 0; i < 50; i++ {
		assert.True(t, l.Allow("1.1.1.1"))
	}
}

func TestIPRateLimiter_SweepsIdleVisitors(t *testing.T) {
	l := newIPRateLimiter(60, 1)
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("1.1.1.1")
	now = now.Add(visitorIdleTimeout + time.Minute)
	l.Allow("2.2.2.2")

	l.Lock()
	l.sweep(now)
	_, stale := l.visitors["1.1.1.1"]
	_, fresh := l.visitors["2.2.2.2"]
	l.Unlock()

	assert.False(t, stale)
	assert.True(t, fresh)
}

func TestIPRateLimiter_FullTableRefusesNewClients(t *testing.T) {
	l := newIPRateLimiter(60, 5)
	l.capacity = 2
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"))
	assert.False(t, l.Allow("3.3.3.3"))
	assert.True(t, l.Allow("1.1.1.1"), "known clients keep their bucket")
	assert.Len(t, l.visitors, 2)

	// Once the others go idle the periodic sweep frees their slots.
	now = now.Add(visitorIdleTimeout + visitorSweepInterval)
	assert.True(t, l.Allow("3.3.3.3"))
	assert.Len(t, l.visitors, 1)
}

func TestIPRateLimiter_SweepsOnInterval(t *testing.T) {
	l := newIPRateLimiter(60, 1)
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("1.1.1.1")
	now = now.Add(visitorIdleTimeout + time.Second)
	l.Allow("2.2.2.2")

	_, kept := l.visitors["1.1.1.1"]
	assert.False(t, kept, "idle entry swept without the table being full")
}
