package realtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsAfterDelay(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	var fired atomic.Int32
	s.Schedule(func() { fired.Add(1) }, time.Second)

	mock.Add(999 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	mock.Add(time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
}

func TestSchedulerCancel(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	var fired atomic.Int32
	cancel := s.Schedule(func() { fired.Add(1) }, time.Second)

	assert.True(t, cancel())
	assert.False(t, cancel())

	mock.Add(2 * time.Second)
	assert.Never(t, func() bool { return fired.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}
