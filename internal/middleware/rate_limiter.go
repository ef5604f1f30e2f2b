package middleware

import (
	"sync"
	"time"
)

// RateLimiter implements a simple in-memory fixed-window rate limiter
type RateLimiter struct {
	accountLimits map[uint]*windowLimit
	ipLimits      map[string]*windowLimit
	mu            sync.Mutex

	accountMaxRequests int
	ipMaxRequests      int
	window             time.Duration
	now                func() time.Time
	done               chan struct{}
	stopOnce           sync.Once
}

type windowLimit struct {
	requests  int
	resetTime time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(accountMaxRequests, ipMaxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		accountLimits:      make(map[uint]*windowLimit),
		ipLimits:           make(map[string]*windowLimit),
		accountMaxRequests: accountMaxRequests,
		ipMaxRequests:      ipMaxRequests,
		window:             window,
		now:                time.Now,
		done:               make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// CheckAccountLimit checks if an account has exceeded its rate limit
func (rl *RateLimiter) CheckAccountLimit(accountID uint) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return hit(rl.accountLimits, accountID, rl.accountMaxRequests, rl.now(), rl.window)
}

// CheckIPLimit checks if IP has exceeded rate limit
func (rl *RateLimiter) CheckIPLimit(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return hit(rl.ipLimits, ip, rl.ipMaxRequests, rl.now(), rl.window)
}

// GetAccountRemaining returns remaining requests for an account
func (rl *RateLimiter) GetAccountRemaining(accountID uint) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, exists := rl.accountLimits[accountID]
	if !exists || rl.now().After(limit.resetTime) {
		return rl.accountMaxRequests
	}
	remaining := rl.accountMaxRequests - limit.requests
	if remaining < 0 {
		return 0
	}
	return remaining
}

func hit[K comparable](limits map[K]*windowLimit, key K, maxRequests int, now time.Time, window time.Duration) bool {
	if maxRequests <= 0 {
		return true
	}
	limit, exists := limits[key]
	if !exists || now.After(limit.resetTime) {
		limits[key] = &windowLimit{requests: 1, resetTime: now.Add(window)}
		return true
	}
	if limit.requests >= maxRequests {
		return false
	}
	limit.requests++
	return true
}

// cleanup removes expired entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		now := rl.now()
		for id, limit := range rl.accountLimits {
			if now.After(limit.resetTime) {
				delete(rl.accountLimits, id)
			}
		}
		for ip, limit := range rl.ipLimits {
			if now.After(limit.resetTime) {
				delete(rl.ipLimits, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Reset clears all rate limits (useful for testing)
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.accountLimits = make(map[uint]*windowLimit)
	rl.ipLimits = make(map[string]*windowLimit)
}
