package common

import (
	"log"
	"strconv"
	"sync"
	"time"
)

// RateLimiter tracks remaining API quota as reported by the exchange.
// KuCoin returns the remaining request budget per window in the
// gw-ratelimit-remaining response header.
type RateLimiter struct {
	remaining int
	limit     int
	lastSeen  time.Time
	mu        sync.RWMutex
}

// NewRateLimiter creates a limiter for the given per-window budget
// (e.g. 2000 for KuCoin spot).
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{limit: limit, remaining: limit}
}

// UpdateFromHeader records the remaining quota from a response header value.
func (rl *RateLimiter) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}
	remaining, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.remaining = remaining
	rl.lastSeen = time.Now()

	pct := float64(remaining) / float64(rl.limit) * 100
	if pct <= 5 {
		log.Printf("rate limit critical: %d/%d remaining - approaching ban threshold", remaining, rl.limit)
	} else if pct <= 20 {
		log.Printf("rate limit warning: %d/%d remaining", remaining, rl.limit)
	}
}

// Remaining returns the last reported quota.
func (rl *RateLimiter) Remaining() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.remaining
}

// ShouldDelay reports whether the next request should be held back.
func (rl *RateLimiter) ShouldDelay() bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limit > 0 && float64(rl.remaining)/float64(rl.limit) <= 0.05
}
