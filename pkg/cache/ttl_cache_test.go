package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHonoursTTL(t *testing.T) {
	clk := clock.NewMock()
	c := New[string, int](30*time.Second, time.Hour, clk)
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clk.Add(31 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "expired entry stays until the sweep")
}

func TestSweepRemovesExpired(t *testing.T) {
	clk := clock.NewMock()
	c := New[string, int](time.Second, 10*time.Second, clk)
	defer c.Close()

	c.Set("a", 1)
	clk.Add(10 * time.Second)

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDeleteFuncAndClear(t *testing.T) {
	c := New[string, bool](time.Minute, time.Minute, nil)
	defer c.Close()

	c.Set("conv1:alice", true)
	c.Set("conv1:bob", true)
	c.Set("conv2:alice", true)

	c.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, "conv1:") })
	assert.Equal(t, 1, c.Len())

	c.Delete("conv2:alice")
	_, ok := c.Get("conv2:alice")
	assert.False(t, ok)

	c.Set("x", true)
	c.Clear()
	assert.Equal(t, 0, c.Len())

	c.Close()
	c.Close()
}
