package common

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiter tracks exchange request weight reported in response headers.
type RateLimiter struct {
	usedWeight    int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
	log           *zap.Logger
	mu            sync.RWMutex
}

// NewRateLimiter creates a weight tracker.
// limit: maximum weight allowed per resetInterval (2400/min for USDT-M futures).
func NewRateLimiter(limit int, resetInterval time.Duration, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
		log:           log,
	}
}

// UpdateFromHeader records the used weight from an X-MBX-USED-WEIGHT-1M header.
func (rl *RateLimiter) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		rl.lastReset = time.Now()
	}
	rl.usedWeight = weight

	pct := float64(rl.usedWeight) / float64(rl.limit) * 100
	switch {
	case pct >= 95:
		rl.log.Error("exchange weight critical", zap.Int("used", rl.usedWeight), zap.Int("limit", rl.limit))
	case pct >= 80:
		rl.log.Warn("exchange weight high", zap.Int("used", rl.usedWeight), zap.Int("limit", rl.limit))
	}
}

// Usage returns current weight usage.
func (rl *RateLimiter) Usage() (used int, limit int, percentage float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		return 0, rl.limit, 0
	}
	return rl.usedWeight, rl.limit, float64(rl.usedWeight) / float64(rl.limit) * 100
}

// ShouldDelay reports whether callers should back off before the next request.
func (rl *RateLimiter) ShouldDelay() bool {
	_, _, pct := rl.Usage()
	return pct >= 90
}
