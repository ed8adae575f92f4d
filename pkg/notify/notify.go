// Package notify is the user-visible notification collaborator.
//
// Durable-state failures (a read pointer that could not be written, a
// status fetch that failed) are reported here; ephemeral realtime state
// never is. A Center is constructed explicitly and handed to whoever needs
// it, so two sessions (or two tests) never share one.
package notify

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akinalp/tradechat/pkg/logger"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a single user-visible message.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Center keeps the most recent notifications and fans them out to
// subscribers.
type Center struct {
	mu      sync.Mutex
	items   []Notification
	max     int
	subs    map[int]func(Notification)
	nextSub int
	closed  bool

	clk clock.Clock
	log *zap.Logger
}

// NewCenter returns a Center that keeps at most max notifications.
func NewCenter(log *zap.Logger, max int, clk clock.Clock) *Center {
	if max <= 0 {
		max = 50
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Center{
		max:  max,
		subs: make(map[int]func(Notification)),
		clk:  clk,
		log:  logger.OrNop(log).Named("notify"),
	}
}

// Info records an informational notification.
func (c *Center) Info(title, message string) {
	c.push(LevelInfo, title, message)
}

// Error records a failure. A nil err is ignored.
func (c *Center) Error(title string, err error) {
	if err == nil {
		return
	}
	c.push(LevelError, title, err.Error())
}

func (c *Center) push(level Level, title, message string) {
	n := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Title:     title,
		Message:   message,
		CreatedAt: c.clk.Now(),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.items = append(c.items, n)
	if len(c.items) > c.max {
		c.items = append([]Notification(nil), c.items[len(c.items)-c.max:]...)
	}
	subs := make([]func(Notification), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	if level == LevelError {
		c.log.Warn(title, zap.String("message", message))
	} else {
		c.log.Debug(title, zap.String("message", message))
	}

	for _, fn := range subs {
		fn(n)
	}
}

// List returns the retained notifications, oldest first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.items...)
}

// Dismiss removes a notification by id.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// Subscribe registers fn for every new notification and returns a function
// that removes it.
func (c *Center) Subscribe(fn func(Notification)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Close drops all state; later notifications are ignored.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.items = nil
	c.subs = make(map[int]func(Notification))
}
