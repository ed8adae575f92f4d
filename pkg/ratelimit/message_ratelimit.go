package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// messageBucket is either counting inside a window or in cooldown
// (cooldownUntil after now).
type messageBucket struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time
}

// MessageRateLimiter limits message sends per user. Exceeding maxMessages
// inside window starts a cooldown during which every send is rejected.
//
// How it differs from ConnectRateLimiter:
// The key is the authenticated user id rather than the client IP, since a
// message can only be sent after the token is checked. The penalty is also
// decoupled from the window. A user gets 5 messages per 5 seconds, and the
// 6th starts a 15 second cooldown. When the cooldown ends the window
// restarts from zero.
//
// Why a separate struct?
// ConnectRateLimiter's penalty is whatever is left of the window. Here the
// window is short and the penalty long, and folding both behaviours into
// one type would need a mode flag on every call.
//
//	limiter := NewMessageRateLimiter(5, 5*time.Second, 15*time.Second, nil)
//	if !limiter.Allow(userID) { return 429 }
type MessageRateLimiter struct {
	mu          sync.RWMutex
	buckets     map[string]*messageBucket
	maxMessages int
	window      time.Duration
	cooldown    time.Duration
	clk         clock.Clock
	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// NewMessageRateLimiter starts a limiter with a background sweep. A nil clk
// means the wall clock.
func NewMessageRateLimiter(maxMessages int, window, cooldown time.Duration, clk clock.Clock) *MessageRateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	rl := &MessageRateLimiter{
		buckets:     make(map[string]*messageBucket),
		maxMessages: maxMessages,
		window:      window,
		cooldown:    cooldown,
		clk:         clk,
		stopCleanup: make(chan struct{}),
	}

	ticker := clk.Ticker(30 * time.Second)
	go rl.cleanupLoop(ticker)

	return rl
}

// Allow records a send attempt and reports whether it is within limits.
func (rl *MessageRateLimiter) Allow(userID string) bool {
	now := rl.clk.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[userID]
	if !exists {
		rl.buckets[userID] = &messageBucket{count: 1, windowStart: now}
		return true
	}

	if !b.cooldownUntil.IsZero() && now.Before(b.cooldownUntil) {
		return false
	}

	if !b.cooldownUntil.IsZero() {
		b.count = 1
		b.windowStart = now
		b.cooldownUntil = time.Time{}
		return true
	}

	if now.Sub(b.windowStart) > rl.window {
		b.count = 1
		b.windowStart = now
		return true
	}

	b.count++
	if b.count > rl.maxMessages {
		b.cooldownUntil = now.Add(rl.cooldown)
		return false
	}

	return true
}

// CooldownSeconds is the Retry-After value for a limited user, 0 when the
// user is not cooling down.
func (rl *MessageRateLimiter) CooldownSeconds(userID string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	b, exists := rl.buckets[userID]
	if !exists || b.cooldownUntil.IsZero() {
		return 0
	}

	remaining := b.cooldownUntil.Sub(rl.clk.Now())
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

func (rl *MessageRateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *MessageRateLimiter) cleanupLoop(ticker *clock.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops buckets whose window and cooldown have both passed.
func (rl *MessageRateLimiter) cleanup() {
	now := rl.clk.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for userID, b := range rl.buckets {
		windowExpired := now.Sub(b.windowStart) > rl.window
		cooldownExpired := b.cooldownUntil.IsZero() || now.After(b.cooldownUntil)

		if windowExpired && cooldownExpired {
			delete(rl.buckets, userID)
		}
	}
}
