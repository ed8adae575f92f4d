package wsport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/akinalp/tradechat/pubsub"
	"github.com/akinalp/tradechat/ws"
)

type channel struct {
	port     *Port
	name     string
	cfg      pubsub.ChannelConfig
	handlers pubsub.Handlers

	// guarded by port.mu
	subscribed bool
	removed    bool
	tracked    bool
	onStatus   pubsub.StatusFunc

	stateMu sync.Mutex
	state   pubsub.PresenceState
}

func (c *channel) Name() string { return c.name }

func (c *channel) On(kind pubsub.Kind, filter string, fn pubsub.Handler) pubsub.Channel {
	c.handlers.Add(kind, filter, fn)
	return c
}

// Subscribe joins the topic. The status callback runs on the port's read
// goroutine once the server answers, or immediately when the topic is
// already joined on this connection.
func (c *channel) Subscribe(onStatus pubsub.StatusFunc) pubsub.Channel {
	p := c.port

	p.mu.Lock()
	c.onStatus = onStatus
	if c.removed || p.closed {
		p.mu.Unlock()
		c.status(pubsub.StatusClosed, nil)
		return c
	}
	if c.subscribed {
		p.mu.Unlock()
		return c
	}

	t, ok := p.topics[c.name]
	if !ok {
		t = &topic{channels: make(map[*channel]struct{})}
		p.topics[c.name] = t
	}
	t.channels[c] = struct{}{}

	if t.confirmed {
		c.subscribed = true
		state := t.state.Clone()
		p.mu.Unlock()

		c.status(pubsub.StatusSubscribed, nil)
		c.deliverSync(state)
		return c
	}

	request := !t.requested
	t.requested = true
	p.mu.Unlock()

	if request {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if err := p.write(ctx, ws.OpSubscribe, ws.SubscribeData{Topic: c.name, PresenceKey: c.cfg.PresenceKey}); err != nil {
			p.mu.Lock()
			delete(t.channels, c)
			t.requested = false
			p.mu.Unlock()
			c.status(pubsub.StatusChannelError, err)
		}
	}
	return c
}

// Send broadcasts to the topic's other subscribers: remote ones through
// the server, local ones on this port directly.
func (c *channel) Send(ctx context.Context, event string, payload any) error {
	if err := c.usable(); err != nil {
		return err
	}
	raw, err := pubsub.MarshalPayload(payload)
	if err != nil {
		return err
	}
	if err := c.port.write(ctx, ws.OpBroadcast, ws.BroadcastData{Topic: c.name, Event: event, Payload: raw}); err != nil {
		return err
	}

	c.port.dispatch(c.name, pubsub.Event{Kind: pubsub.KindBroadcast, Topic: c.name, Name: event, Payload: raw}, c)
	return nil
}

// Track announces this connection. The server keys the entry by the
// authenticated user id.
func (c *channel) Track(ctx context.Context, payload any) error {
	if err := c.usable(); err != nil {
		return err
	}
	raw, err := pubsub.MarshalPayload(payload)
	if err != nil {
		return err
	}
	if err := c.port.write(ctx, ws.OpTrack, ws.TrackData{Topic: c.name, Payload: raw}); err != nil {
		return err
	}

	c.port.mu.Lock()
	c.tracked = true
	c.port.mu.Unlock()
	return nil
}

func (c *channel) Untrack(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}

	c.port.mu.Lock()
	tracked := c.tracked
	c.tracked = false
	c.port.mu.Unlock()
	if !tracked {
		return nil
	}
	return c.port.write(ctx, ws.OpUntrack, ws.TopicData{Topic: c.name})
}

func (c *channel) PresenceState() pubsub.PresenceState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state.Clone()
}

func (c *channel) usable() error {
	c.port.mu.Lock()
	defer c.port.mu.Unlock()
	if c.removed || c.port.closed {
		return pubsub.ErrChannelClosed
	}
	if !c.subscribed {
		return pubsub.ErrNotSubscribed
	}
	return nil
}

func (c *channel) setState(state pubsub.PresenceState) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}

// deliverSync hands a late joiner the snapshot the topic already holds.
func (c *channel) deliverSync(state pubsub.PresenceState) {
	c.setState(state)
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	c.handlers.Dispatch(pubsub.Event{Kind: pubsub.KindPresence, Topic: c.name, Name: pubsub.PresenceSync, Payload: raw})
}

func (c *channel) status(status pubsub.Status, err error) {
	c.port.mu.Lock()
	fn := c.onStatus
	c.port.mu.Unlock()
	if fn != nil {
		fn(status, err)
	}
}
