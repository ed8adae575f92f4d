package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// MemoryBroker is an in-process Port. Every channel obtained from the same
// broker shares topics, so several simulated clients can talk to each
// other. Delivery is synchronous and happens without the broker lock held.
type MemoryBroker struct {
	mu     sync.Mutex
	topics map[string]map[*memoryChannel]struct{}
	clk    clock.Clock

	opened  int
	removed int

	denied     map[string]error
	sendErr    error
	trackErr   error
	untrackErr error
}

// NewMemoryBroker returns an empty broker. A nil clk uses the wall clock.
func NewMemoryBroker(clk clock.Clock) *MemoryBroker {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryBroker{
		topics: make(map[string]map[*memoryChannel]struct{}),
		clk:    clk,
		denied: make(map[string]error),
	}
}

// Channel returns a new, unsubscribed channel handle.
func (b *MemoryBroker) Channel(name string, opts ...ChannelOption) Channel {
	cfg := ApplyOptions(opts...)
	b.mu.Lock()
	b.opened++
	b.mu.Unlock()

	return &memoryChannel{
		broker: b,
		name:   name,
		cfg:    cfg,
		ref:    uuid.NewString(),
	}
}

// RemoveChannel unsubscribes ch and withdraws its presence. It is
// idempotent.
func (b *MemoryBroker) RemoveChannel(ch Channel) error {
	mc, ok := ch.(*memoryChannel)
	if !ok || mc.broker != b {
		return nil
	}

	b.mu.Lock()
	if mc.removed {
		b.mu.Unlock()
		return nil
	}
	mc.removed = true
	b.removed++
	wasTracked := mc.tracked != nil
	mc.tracked = nil
	wasSubscribed := mc.subscribed
	mc.subscribed = false
	if subs, ok := b.topics[mc.name]; ok {
		delete(subs, mc)
		if len(subs) == 0 {
			delete(b.topics, mc.name)
		}
	}
	b.mu.Unlock()

	if wasSubscribed && mc.onStatus != nil {
		mc.onStatus(StatusClosed, nil)
	}
	mc.handlers.Clear()
	if wasTracked {
		b.syncPresence(mc.name)
	}
	return nil
}

// Emit delivers a server-originated event to every subscriber of topic.
func (b *MemoryBroker) Emit(topic string, ev Event) {
	ev.Topic = topic
	for _, ch := range b.subscribers(topic, nil) {
		ch.handlers.Dispatch(ev)
	}
}

// EmitChange is Emit for a change notification.
func (b *MemoryBroker) EmitChange(topic, table, action string, record any) error {
	raw, err := MarshalPayload(record)
	if err != nil {
		return err
	}
	b.Emit(topic, Event{Kind: KindChange, Name: table, Action: action, Payload: raw})
	return nil
}

// Deny makes every later Subscribe on topic fail with err.
func (b *MemoryBroker) Deny(topic string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.denied[topic] = err
}

// FailSends makes Send return err (nil restores normal behavior).
func (b *MemoryBroker) FailSends(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErr = err
}

// FailPresence makes Track and Untrack return the given errors.
func (b *MemoryBroker) FailPresence(trackErr, untrackErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trackErr = trackErr
	b.untrackErr = untrackErr
}

// Opened reports how many channel handles were created.
func (b *MemoryBroker) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

// Removed reports how many channels were actually torn down.
func (b *MemoryBroker) Removed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removed
}

// Active reports how many handles are open and not yet removed.
func (b *MemoryBroker) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened - b.removed
}

// Subscribers reports how many channels are subscribed to topic.
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// State returns the broker-side presence snapshot of topic.
func (b *MemoryBroker) State(topic string) PresenceState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked(topic)
}

func (b *MemoryBroker) stateLocked(topic string) PresenceState {
	state := make(PresenceState)
	for ch := range b.topics[topic] {
		if ch.tracked == nil {
			continue
		}
		state[ch.key()] = append(state[ch.key()], *ch.tracked)
	}
	return state
}

func (b *MemoryBroker) subscribers(topic string, except *memoryChannel) []*memoryChannel {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*memoryChannel, 0, len(b.topics[topic]))
	for ch := range b.topics[topic] {
		if ch != except {
			out = append(out, ch)
		}
	}
	return out
}

// syncPresence pushes the current snapshot to every subscriber of topic.
func (b *MemoryBroker) syncPresence(topic string) {
	b.mu.Lock()
	state := b.stateLocked(topic)
	b.mu.Unlock()

	for _, ch := range b.subscribers(topic, nil) {
		ch.deliverSync(state.Clone())
	}
}

// ─── Channel ───

type memoryChannel struct {
	broker   *MemoryBroker
	name     string
	cfg      ChannelConfig
	ref      string
	handlers Handlers

	// guarded by broker.mu
	subscribed bool
	removed    bool
	tracked    *PresenceEntry
	onStatus   StatusFunc

	stateMu sync.Mutex
	state   PresenceState
}

func (c *memoryChannel) Name() string { return c.name }

func (c *memoryChannel) key() string {
	if c.cfg.PresenceKey != "" {
		return c.cfg.PresenceKey
	}
	return c.ref
}

func (c *memoryChannel) On(kind Kind, filter string, fn Handler) Channel {
	c.handlers.Add(kind, filter, fn)
	return c
}

func (c *memoryChannel) Subscribe(onStatus StatusFunc) Channel {
	b := c.broker

	b.mu.Lock()
	c.onStatus = onStatus
	if c.removed {
		b.mu.Unlock()
		if onStatus != nil {
			onStatus(StatusClosed, nil)
		}
		return c
	}
	if err, denied := b.denied[c.name]; denied {
		b.mu.Unlock()
		if onStatus != nil {
			onStatus(StatusChannelError, err)
		}
		return c
	}
	if c.subscribed {
		b.mu.Unlock()
		return c
	}
	subs, ok := b.topics[c.name]
	if !ok {
		subs = make(map[*memoryChannel]struct{})
		b.topics[c.name] = subs
	}
	subs[c] = struct{}{}
	c.subscribed = true
	b.mu.Unlock()

	if onStatus != nil {
		onStatus(StatusSubscribed, nil)
	}

	// The status callback may already have tracked, so the joiner's
	// snapshot is taken afterwards.
	b.mu.Lock()
	if c.removed {
		b.mu.Unlock()
		return c
	}
	state := b.stateLocked(c.name)
	b.mu.Unlock()
	c.deliverSync(state)
	return c
}

func (c *memoryChannel) Send(ctx context.Context, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := c.broker

	b.mu.Lock()
	if err := c.usableLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	if b.sendErr != nil {
		err := b.sendErr
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	raw, err := MarshalPayload(payload)
	if err != nil {
		return err
	}
	ev := Event{Kind: KindBroadcast, Topic: c.name, Name: event, Payload: raw}
	for _, other := range b.subscribers(c.name, c) {
		other.handlers.Dispatch(ev)
	}
	return nil
}

func (c *memoryChannel) Track(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := MarshalPayload(payload)
	if err != nil {
		return err
	}
	b := c.broker

	b.mu.Lock()
	if err := c.usableLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	if b.trackErr != nil {
		err := b.trackErr
		b.mu.Unlock()
		return err
	}
	c.tracked = &PresenceEntry{Ref: c.ref, OnlineAt: b.clk.Now(), Payload: raw}
	b.mu.Unlock()

	b.syncPresence(c.name)
	return nil
}

func (c *memoryChannel) Untrack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := c.broker

	b.mu.Lock()
	if err := c.usableLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	if b.untrackErr != nil {
		err := b.untrackErr
		b.mu.Unlock()
		return err
	}
	if c.tracked == nil {
		b.mu.Unlock()
		return nil
	}
	c.tracked = nil
	b.mu.Unlock()

	b.syncPresence(c.name)
	return nil
}

func (c *memoryChannel) PresenceState() PresenceState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state.Clone()
}

func (c *memoryChannel) usableLocked() error {
	if c.removed {
		return ErrChannelClosed
	}
	if !c.subscribed {
		return ErrNotSubscribed
	}
	return nil
}

func (c *memoryChannel) deliverSync(state PresenceState) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()

	raw, _ := json.Marshal(state)
	c.handlers.Dispatch(Event{Kind: KindPresence, Topic: c.name, Name: PresenceSync, Payload: raw})
}
