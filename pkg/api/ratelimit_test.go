package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiters_ReusesClientBucket(t *testing.T) {
	rl := newRateLimiters(60)

	first := rl.get("10.0.0.1")
	assert.Same(t, first, rl.get("10.0.0.1"))
	assert.NotSame(t, first, rl.get("10.0.0.2"))
}

func TestRateLimiters_SweepDropsStaleClients(t *testing.T) {
	rl := newRateLimiters(60)

	stale := time.Now().Add(-2 * rateLimitEntryTTL)
	rl.clients["10.0.0.1"] = &clientLimiter{
		limiter:  rate.NewLimiter(rl.rps, rl.burst),
		lastSeen: stale,
	}
	rl.lastSweep = stale

	// The next access sweeps the expired entry and keeps the new one.
	rl.get("10.0.0.2")

	assert.NotContains(t, rl.clients, "10.0.0.1")
	assert.Contains(t, rl.clients, "10.0.0.2")
}

func TestRateLimiters_RecentClientsSurviveSweep(t *testing.T) {
	rl := newRateLimiters(60)

	rl.get("10.0.0.1")
	rl.lastSweep = time.Now().Add(-2 * rateLimitSweepInterval)

	rl.get("10.0.0.2")

	assert.Contains(t, rl.clients, "10.0.0.1")
	assert.Contains(t, rl.clients, "10.0.0.2")
}
