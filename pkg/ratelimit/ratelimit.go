// Package ratelimit holds in-memory limiters: a per-IP limiter for
// WebSocket connection attempts and a per-user limiter for message sends.
//
// Fixed window:
// Both limiters count attempts inside a window that starts at the first
// attempt. When the window runs out the counter starts over. This is
// coarser than a sliding log but needs one small struct per key.
//
// State lives in process memory; each instance limits independently.
// Behind a load balancer the effective limit is per instance.
//
// Buckets for keys that have gone quiet are dropped by a background sweep,
// stopped with Close.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type bucket struct {
	count       int
	windowStart time.Time
}

// ConnectRateLimiter allows at most maxAttempts connection attempts per IP
// in each fixed window.
//
//	limiter := NewConnectRateLimiter(30, time.Minute, nil)
//	if !limiter.Allow(ExtractIP(r)) { return 429 }
type ConnectRateLimiter struct {
	mu          sync.RWMutex
	buckets     map[string]*bucket
	maxAttempts int
	window      time.Duration
	clk         clock.Clock
	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// NewConnectRateLimiter starts a limiter with a background sweep. A nil
// clk means the wall clock.
func NewConnectRateLimiter(maxAttempts int, window time.Duration, clk clock.Clock) *ConnectRateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	rl := &ConnectRateLimiter{
		buckets:     make(map[string]*bucket),
		maxAttempts: maxAttempts,
		window:      window,
		clk:         clk,
		stopCleanup: make(chan struct{}),
	}

	ticker := clk.Ticker(time.Minute)
	go rl.cleanupLoop(ticker)

	return rl
}

// Allow counts the attempt and reports whether ip is within the limit.
func (rl *ConnectRateLimiter) Allow(ip string) bool {
	now := rl.clk.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[ip]
	if !exists {
		rl.buckets[ip] = &bucket{count: 1, windowStart: now}
		return true
	}

	if now.Sub(b.windowStart) > rl.window {
		b.count = 1
		b.windowStart = now
		return true
	}

	b.count++
	return b.count <= rl.maxAttempts
}

func (rl *ConnectRateLimiter) Reset(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, ip)
}

// RetryAfterSeconds is the Retry-After value for ip.
func (rl *ConnectRateLimiter) RetryAfterSeconds(ip string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	b, exists := rl.buckets[ip]
	if !exists {
		return 0
	}

	remaining := rl.window - rl.clk.Now().Sub(b.windowStart)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

func (rl *ConnectRateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *ConnectRateLimiter) cleanupLoop(ticker *clock.Ticker) {
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

func (rl *ConnectRateLimiter) cleanup() {
	now := rl.clk.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, b := range rl.buckets {
		if now.Sub(b.windowStart) > rl.window {
			delete(rl.buckets, ip)
		}
	}
}

// ExtractIP returns the client address, preferring the first
// X-Forwarded-For hop, then X-Real-IP, then RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
