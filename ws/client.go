package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akinalp/tradechat/pubsub"
)

const (
	writeWait = 10 * time.Second

	// pongWait allows three missed 30s heartbeats.
	pongWait = 90 * time.Second

	// maxMessageSize fits a card_offer broadcast with a few dozen cards.
	maxMessageSize = 16 * 1024

	sendBufferSize = 256
)

// subscription is one topic a connection joined.
type subscription struct {
	tracked bool
}

// Client is one WebSocket connection. ReadPump and WritePump each own one
// side of conn.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	connID string
	log    *zap.Logger

	send chan []byte
	mu   sync.Mutex

	subMu sync.Mutex
	subs  map[string]*subscription
}

func newClient(hub *Hub, conn *websocket.Conn, userID, connID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		connID: connID,
		log:    hub.log.With(zap.String("user_id", userID), zap.String("conn_id", connID)),
		send:   make(chan []byte, sendBufferSize),
		subs:   make(map[string]*subscription),
	}
}

// ReadPump reads frames until the connection fails, then unregisters.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("failed to set read deadline", zap.Error(err))
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("unexpected close", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Debug("invalid frame", zap.Error(err))
			continue
		}

		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame Frame) {
	switch frame.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		c.sendEvent(Event{Op: OpHeartbeatAck})

	case OpSubscribe:
		var data SubscribeData
		if decode(frame, &data) {
			c.handleSubscribe(data.Topic)
		}

	case OpUnsubscribe:
		var data TopicData
		if decode(frame, &data) {
			c.handleUnsubscribe(data.Topic)
		}

	case OpBroadcast:
		var data BroadcastData
		if decode(frame, &data) {
			c.handleBroadcast(data)
		}

	case OpTrack:
		var data TrackData
		if decode(frame, &data) {
			c.handleTrack(data)
		}

	case OpUntrack:
		var data TopicData
		if decode(frame, &data) {
			c.handleUntrack(data.Topic)
		}

	default:
		c.log.Debug("unknown op", zap.String("op", frame.Op))
	}
}

func decode(frame Frame, v any) bool {
	if len(frame.Data) == 0 {
		return false
	}
	return json.Unmarshal(frame.Data, v) == nil
}

// ─── Topic ops ───

func (c *Client) handleSubscribe(topic string) {
	if topic == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if c.hub.authorize != nil {
		if err := c.hub.authorize(ctx, c.userID, topic); err != nil {
			c.log.Debug("subscribe denied", zap.String("topic", topic), zap.Error(err))
			c.sendEvent(Event{Op: OpSubscribed, Data: SubscribedData{
				Topic:  topic,
				Status: pubsub.StatusChannelError,
				Reason: err.Error(),
			}})
			return
		}
	}

	// Record the subscription before joining so a concurrent removal
	// always sees it.
	c.subMu.Lock()
	if _, ok := c.subs[topic]; !ok {
		c.subs[topic] = &subscription{}
	}
	c.subMu.Unlock()

	if !c.hub.joinTopic(c, topic) {
		return
	}

	c.sendEvent(Event{Op: OpSubscribed, Data: SubscribedData{Topic: topic, Status: pubsub.StatusSubscribed}})

	snapshot, err := c.hub.presenceSnapshot(ctx, topic)
	if err != nil {
		c.log.Warn("presence snapshot for joiner failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	c.sendEvent(snapshot)
}

func (c *Client) handleUnsubscribe(topic string) {
	c.subMu.Lock()
	sub, ok := c.subs[topic]
	delete(c.subs, topic)
	c.subMu.Unlock()
	if !ok {
		return
	}

	c.hub.leaveTopic(c, topic)
	if sub.tracked {
		c.untrack(topic)
	}
}

func (c *Client) handleBroadcast(data BroadcastData) {
	if data.Event == "" || !c.subscribed(data.Topic) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	c.hub.publishTopic(ctx, data.Topic, Event{Op: OpBroadcast, Data: data}, c)
}

func (c *Client) handleTrack(data TrackData) {
	c.subMu.Lock()
	sub, ok := c.subs[data.Topic]
	if ok {
		sub.tracked = true
	}
	c.subMu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	entry := pubsub.PresenceEntry{
		Ref:      c.connID,
		OnlineAt: c.hub.clk.Now().UTC(),
		Payload:  data.Payload,
	}
	if err := c.hub.presence.Track(ctx, data.Topic, c.userID, entry); err != nil {
		c.log.Warn("presence track failed", zap.String("topic", data.Topic), zap.Error(err))
		return
	}
	c.hub.syncPresence(ctx, data.Topic, true)
}

func (c *Client) handleUntrack(topic string) {
	c.subMu.Lock()
	sub, ok := c.subs[topic]
	wasTracked := ok && sub.tracked
	if ok {
		sub.tracked = false
	}
	c.subMu.Unlock()

	if wasTracked {
		c.untrack(topic)
	}
}

func (c *Client) untrack(topic string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := c.hub.presence.Untrack(ctx, topic, c.userID, c.connID); err != nil {
		c.log.Warn("presence untrack failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	c.hub.syncPresence(ctx, topic, true)
}

func (c *Client) subscribed(topic string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	_, ok := c.subs[topic]
	return ok
}

// topics returns the joined topic names. Called with hub.mu held.
func (c *Client) topics() map[string]struct{} {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	out := make(map[string]struct{}, len(c.subs))
	for topic := range c.subs {
		out[topic] = struct{}{}
	}
	return out
}

// dropAll forgets every subscription and returns the tracked topics.
func (c *Client) dropAll() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	var tracked []string
	for topic, sub := range c.subs {
		if sub.tracked {
			tracked = append(tracked, topic)
		}
	}
	c.subs = make(map[string]*subscription)
	return tracked
}

// ─── Writing ───

func (c *Client) sendEvent(ev Event) {
	c.hub.sendTo(c, ev)
}

// WritePump drains send into the socket until the hub closes send.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			_ = c.writeMessage(websocket.CloseMessage, nil)
			return
		}

		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				c.log.Debug("write failed", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
