// Package pubsub defines the broker contract the realtime coordinators
// depend on.
//
// A Port hands out named channels. Handlers are registered on a channel
// with On before Subscribe; after that the channel can broadcast to the
// other subscribers of the same name and announce presence. Concrete
// brokers live in this package (MemoryBroker) and in pubsub/wsport.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Kind selects which family of events a handler receives.
type Kind string

const (
	KindBroadcast Kind = "broadcast"
	KindPresence  Kind = "presence"
	KindChange    Kind = "postgres_change"
)

// Any matches every event name of a kind.
const Any = "*"

// PresenceSync is the event name delivered with a full presence snapshot.
const PresenceSync = "sync"

// Status is reported to the Subscribe callback.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
)

var (
	// ErrNotSubscribed is returned by Send/Track/Untrack before the channel
	// reached StatusSubscribed.
	ErrNotSubscribed = errors.New("pubsub: channel not subscribed")

	// ErrChannelClosed is returned once a channel has been removed.
	ErrChannelClosed = errors.New("pubsub: channel closed")
)

// Event is a single push delivered to a channel.
//
// Name carries the broadcast event name, PresenceSync for presence, or the
// table name for change events. Action is only set for change events
// (INSERT, UPDATE, DELETE).
type Event struct {
	Kind    Kind            `json:"kind"`
	Topic   string          `json:"topic"`
	Name    string          `json:"name"`
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return errors.New("pubsub: empty payload")
	}
	return json.Unmarshal(e.Payload, v)
}

// PresenceEntry is one tracked connection under a presence key.
type PresenceEntry struct {
	Ref      string          `json:"presence_ref"`
	OnlineAt time.Time       `json:"online_at"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// PresenceState maps a presence key (a user id) to its live entries.
type PresenceState map[string][]PresenceEntry

// Clone returns a deep-enough copy for handing to callers.
func (s PresenceState) Clone() PresenceState {
	out := make(PresenceState, len(s))
	for k, entries := range s {
		out[k] = append([]PresenceEntry(nil), entries...)
	}
	return out
}

// Keys returns the keys that have at least one entry.
func (s PresenceState) Keys() []string {
	keys := make([]string, 0, len(s))
	for k, entries := range s {
		if len(entries) > 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

// Handler receives events. It is called without any broker lock held, so
// it may call back into the channel.
type Handler func(Event)

// StatusFunc receives subscription status changes. err is set for
// StatusChannelError.
type StatusFunc func(status Status, err error)

// Channel is a handle on one named broker channel.
type Channel interface {
	Name() string

	// On registers a handler for events of kind whose name matches filter
	// (or Any). Registration is chainable and must happen before Subscribe.
	On(kind Kind, filter string, fn Handler) Channel

	// Subscribe joins the channel. onStatus may be nil.
	Subscribe(onStatus StatusFunc) Channel

	// Send broadcasts payload under event to the other subscribers.
	Send(ctx context.Context, event string, payload any) error

	// Track announces this connection under the channel's presence key.
	Track(ctx context.Context, payload any) error

	// Untrack withdraws the announcement.
	Untrack(ctx context.Context) error

	// PresenceState returns the last snapshot received on this channel.
	PresenceState() PresenceState
}

// Port is the broker.
type Port interface {
	Channel(name string, opts ...ChannelOption) Channel

	// RemoveChannel tears the channel down. Removing an already removed
	// channel is a no-op.
	RemoveChannel(ch Channel) error
}

// ChannelConfig holds per-channel options.
type ChannelConfig struct {
	PresenceKey string
}

// ChannelOption configures a channel.
type ChannelOption func(*ChannelConfig)

// WithPresenceKey sets the key this connection is tracked under.
func WithPresenceKey(key string) ChannelOption {
	return func(c *ChannelConfig) {
		c.PresenceKey = key
	}
}

// ApplyOptions folds opts into a ChannelConfig.
func ApplyOptions(opts ...ChannelOption) ChannelConfig {
	var cfg ChannelConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ─── Handler registry ───

type binding struct {
	kind   Kind
	filter string
	fn     Handler
}

// Handlers is the handler list shared by broker implementations.
type Handlers struct {
	mu       sync.RWMutex
	bindings []binding
}

// Add registers fn for kind/filter. An empty filter means Any.
func (h *Handlers) Add(kind Kind, filter string, fn Handler) {
	if fn == nil {
		return
	}
	if filter == "" {
		filter = Any
	}
	h.mu.Lock()
	h.bindings = append(h.bindings, binding{kind: kind, filter: filter, fn: fn})
	h.mu.Unlock()
}

// Dispatch calls every matching handler in registration order.
func (h *Handlers) Dispatch(ev Event) {
	h.mu.RLock()
	matched := make([]Handler, 0, len(h.bindings))
	for _, b := range h.bindings {
		if b.kind == ev.Kind && (b.filter == Any || b.filter == ev.Name) {
			matched = append(matched, b.fn)
		}
	}
	h.mu.RUnlock()

	for _, fn := range matched {
		fn(ev)
	}
}

// Clear drops every handler.
func (h *Handlers) Clear() {
	h.mu.Lock()
	h.bindings = nil
	h.mu.Unlock()
}

// MarshalPayload encodes a payload, passing raw JSON through untouched.
func MarshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(p)
	}
}
