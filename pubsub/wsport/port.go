// Package wsport implements pubsub.Port over the server's WebSocket broker
// (GET /ws?token=<JWT>). One Port owns one connection; every channel
// obtained from it is multiplexed over that connection by topic name.
//
//	port, err := wsport.Dial(ctx, wsport.Config{URL: "wss://api.example/ws", Token: token})
//	if err != nil { ... }
//	defer port.Close()
//	presence := realtime.NewPresenceTracker(port, nil, log)
package wsport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akinalp/tradechat/pubsub"
	"github.com/akinalp/tradechat/ws"
)

const (
	defaultHeartbeat = 30 * time.Second
	writeWait        = 10 * time.Second
)

// Config describes how to reach the broker.
type Config struct {
	// URL is the broker endpoint, e.g. "ws://localhost:9090/ws".
	URL   string
	Token string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// HeartbeatInterval defaults to 30s; the server drops connections
	// silent for 90s.
	HeartbeatInterval time.Duration

	Clock  clock.Clock
	Logger *zap.Logger
}

// Port is a pubsub.Port backed by one WebSocket connection.
type Port struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	log     *zap.Logger

	mu     sync.Mutex
	topics map[string]*topic
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// topic is the connection-level subscription shared by every local
// channel with the same name.
type topic struct {
	channels  map[*channel]struct{}
	requested bool
	confirmed bool
	state     pubsub.PresenceState
}

// Dial connects and starts the read and heartbeat loops.
func Dial(ctx context.Context, cfg Config) (*Port, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker url: %w", err)
	}
	q := u.Query()
	q.Set("token", cfg.Token)
	u.RawQuery = q.Encode()

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to broker (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}

	p := &Port{
		conn:   conn,
		log:    cfg.Logger.Named("wsport"),
		topics: make(map[string]*topic),
		done:   make(chan struct{}),
	}

	ticker := cfg.Clock.Ticker(cfg.HeartbeatInterval)
	go p.heartbeatLoop(ticker)
	go p.readLoop()
	return p, nil
}

// Done is closed once the connection is gone.
func (p *Port) Done() <-chan struct{} { return p.done }

// Close drops the connection. Subscribed channels get StatusClosed.
func (p *Port) Close() error {
	p.shutdown()
	return nil
}

func (p *Port) shutdown() {
	p.closeOnce.Do(func() {
		close(p.done)

		p.writeMu.Lock()
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		p.writeMu.Unlock()
		p.conn.Close()

		p.mu.Lock()
		p.closed = true
		var notify []*channel
		for _, t := range p.topics {
			for ch := range t.channels {
				if ch.subscribed {
					ch.subscribed = false
					notify = append(notify, ch)
				}
			}
		}
		p.topics = make(map[string]*topic)
		p.mu.Unlock()

		for _, ch := range notify {
			ch.status(pubsub.StatusClosed, nil)
		}
	})
}

// Channel returns an unsubscribed handle on name.
func (p *Port) Channel(name string, opts ...pubsub.ChannelOption) pubsub.Channel {
	return &channel{port: p, name: name, cfg: pubsub.ApplyOptions(opts...)}
}

// RemoveChannel unsubscribes ch. The server-side subscription is dropped
// with the last local channel on the topic.
func (p *Port) RemoveChannel(pc pubsub.Channel) error {
	ch, ok := pc.(*channel)
	if !ok || ch.port != p {
		return nil
	}

	p.mu.Lock()
	if ch.removed {
		p.mu.Unlock()
		return nil
	}
	ch.removed = true
	wasSubscribed := ch.subscribed
	wasTracked := ch.tracked
	ch.subscribed, ch.tracked = false, false

	var (
		last         bool
		othersTrack  bool
		connectionUp = !p.closed
	)
	if t, ok := p.topics[ch.name]; ok {
		if _, member := t.channels[ch]; member {
			delete(t.channels, ch)
			last = len(t.channels) == 0
			if last {
				delete(p.topics, ch.name)
			}
			for other := range t.channels {
				othersTrack = othersTrack || other.tracked
			}
		}
	}
	p.mu.Unlock()

	var err error
	if connectionUp {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		switch {
		case last:
			err = p.write(ctx, ws.OpUnsubscribe, ws.TopicData{Topic: ch.name})
		case wasTracked && !othersTrack:
			err = p.write(ctx, ws.OpUntrack, ws.TopicData{Topic: ch.name})
		}
		cancel()
	}

	if wasSubscribed {
		ch.status(pubsub.StatusClosed, nil)
	}
	ch.handlers.Clear()
	return err
}

// ─── Wire ───

func (p *Port) write(ctx context.Context, op string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(ws.Event{Op: op, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", op, err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	select {
	case <-p.done:
		return pubsub.ErrChannelClosed
	default:
	}
	if err := p.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, raw)
}

func (p *Port) heartbeatLoop(ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := p.write(ctx, ws.OpHeartbeat, nil)
			cancel()
			if err != nil {
				p.log.Debug("heartbeat failed", zap.Error(err))
			}
		case <-p.done:
			return
		}
	}
}

func (p *Port) readLoop() {
	defer p.shutdown()

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.log.Debug("broker connection lost", zap.Error(err))
			}
			return
		}

		var frame ws.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			p.log.Debug("invalid frame", zap.Error(err))
			continue
		}
		p.handleFrame(frame)
	}
}

func (p *Port) handleFrame(frame ws.Frame) {
	switch frame.Op {
	case ws.OpHeartbeatAck:

	case ws.OpSubscribed:
		var data ws.SubscribedData
		if p.decode(frame, &data) {
			p.handleSubscribed(data)
		}

	case ws.OpPresenceSync:
		var data ws.PresenceSyncData
		if p.decode(frame, &data) {
			p.handlePresence(data)
		}

	case ws.OpBroadcast:
		var data ws.BroadcastData
		if p.decode(frame, &data) {
			p.dispatch(data.Topic, pubsub.Event{
				Kind:    pubsub.KindBroadcast,
				Topic:   data.Topic,
				Name:    data.Event,
				Payload: data.Payload,
			}, nil)
		}

	case ws.OpChange:
		var data ws.ChangeData
		if p.decode(frame, &data) {
			p.dispatch(data.Topic, pubsub.Event{
				Kind:    pubsub.KindChange,
				Topic:   data.Topic,
				Name:    data.Table,
				Action:  data.Type,
				Payload: data.Record,
			}, nil)
		}

	default:
		p.log.Debug("ignoring frame", zap.String("op", frame.Op))
	}
}

func (p *Port) decode(frame ws.Frame, v any) bool {
	if err := json.Unmarshal(frame.Data, v); err != nil {
		p.log.Debug("invalid frame payload", zap.String("op", frame.Op), zap.Error(err))
		return false
	}
	return true
}

func (p *Port) handleSubscribed(data ws.SubscribedData) {
	p.mu.Lock()
	t, ok := p.topics[data.Topic]
	if !ok {
		p.mu.Unlock()
		return
	}

	var pending []*channel
	for ch := range t.channels {
		if !ch.subscribed {
			pending = append(pending, ch)
		}
	}

	var err error
	if data.Status == pubsub.StatusSubscribed {
		t.confirmed = true
		for _, ch := range pending {
			ch.subscribed = true
		}
	} else {
		err = errors.New(data.Reason)
		for _, ch := range pending {
			delete(t.channels, ch)
		}
		t.requested = false
		if len(t.channels) == 0 {
			delete(p.topics, data.Topic)
		}
	}
	p.mu.Unlock()

	for _, ch := range pending {
		ch.status(data.Status, err)
	}
}

func (p *Port) handlePresence(data ws.PresenceSyncData) {
	p.mu.Lock()
	if t, ok := p.topics[data.Topic]; ok {
		t.state = data.State
	}
	p.mu.Unlock()

	raw, err := json.Marshal(data.State)
	if err != nil {
		return
	}
	ev := pubsub.Event{Kind: pubsub.KindPresence, Topic: data.Topic, Name: pubsub.PresenceSync, Payload: raw}
	for _, ch := range p.subscribers(data.Topic, nil) {
		ch.setState(data.State.Clone())
		ch.handlers.Dispatch(ev)
	}
}

// dispatch hands ev to every subscribed local channel of name except skip.
func (p *Port) dispatch(name string, ev pubsub.Event, skip *channel) {
	for _, ch := range p.subscribers(name, skip) {
		ch.handlers.Dispatch(ev)
	}
}

func (p *Port) subscribers(name string, skip *channel) []*channel {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.topics[name]
	if !ok {
		return nil
	}
	out := make([]*channel, 0, len(t.channels))
	for ch := range t.channels {
		if ch.subscribed && ch != skip {
			out = append(out, ch)
		}
	}
	return out
}
