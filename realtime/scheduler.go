package realtime

import (
	"time"

	"github.com/benbjohnson/clock"
)

// CancelFunc cancels a scheduled task. It returns true if the task had not
// started yet.
type CancelFunc func() bool

// Scheduler runs delayed tasks on a clock. Tests pass clock.NewMock().
type Scheduler struct {
	clk clock.Clock
}

// NewScheduler returns a Scheduler. A nil clk uses the wall clock.
func NewScheduler(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{clk: clk}
}

// Schedule runs fn once after delay.
func (s *Scheduler) Schedule(fn func(), delay time.Duration) CancelFunc {
	t := s.clk.AfterFunc(delay, fn)
	return t.Stop
}

// Clock returns the underlying clock.
func (s *Scheduler) Clock() clock.Clock { return s.clk }

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time { return s.clk.Now() }
