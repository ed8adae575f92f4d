package guard

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// Throttle lets at most one call through per window.
//
// It is a token bucket with a burst of one that refills once per window,
// so the window is measured from the last call that passed, not from the
// last call that was attempted: a steady stream of keystrokes still
// produces one pulse per window.
type Throttle struct {
	mu      sync.Mutex
	clk     clock.Clock
	window  time.Duration
	limiter *rate.Limiter
}

// NewThrottle builds a throttle on the given clock. A nil clock uses the
// wall clock.
func NewThrottle(window time.Duration, clk clock.Clock) *Throttle {
	if clk == nil {
		clk = clock.New()
	}
	return &Throttle{
		clk:     clk,
		window:  window,
		limiter: newLimiter(window),
	}
}

func newLimiter(window time.Duration) *rate.Limiter {
	if window <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(window), 1)
}

// Allow reports whether a call may fire now, consuming the window if so.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limiter.AllowN(t.clk.Now(), 1)
}

// Reset starts a fresh window; the next Allow passes.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiter = newLimiter(t.window)
}

// Window returns the configured window.
func (t *Throttle) Window() time.Duration {
	return t.window
}
