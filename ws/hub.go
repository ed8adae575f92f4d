package ws

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher is what services use to push to connected clients.
type EventPublisher interface {
	// BroadcastChange notifies every subscriber of topic that a row of
	// table changed. record is marshalled as JSON.
	BroadcastChange(topic, table, action string, record any)
	BroadcastToUser(userID string, event Event)
	GetOnlineUserIDs() []string
}

// TopicAuthorizer decides whether userID may join topic. A non-nil error
// is sent back as the CHANNEL_ERROR reason.
type TopicAuthorizer func(ctx context.Context, userID, topic string) error

// HubConfig wires a hub's collaborators. Zero values select in-memory
// presence, no relay, the wall clock and a no-op logger.
type HubConfig struct {
	Presence PresenceStore
	Relay    Relay
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Hub tracks connections per user and subscriptions per topic.
//
// Register and unregister go through channels served by Run; topic
// membership and delivery take mu directly. Presence store and relay I/O
// never happens under mu.
type Hub struct {
	clients map[string]map[*Client]bool
	topics  map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	quitOnce   sync.Once

	seq        atomic.Int64
	instanceID string

	presence PresenceStore
	relay    Relay
	clk      clock.Clock
	log      *zap.Logger

	authorize         TopicAuthorizer
	onFirstConnect    func(userID string)
	onFullyDisconnect func(userID string)
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.Presence == nil {
		cfg.Presence = NewMemoryPresenceStore()
	}
	if cfg.Relay == nil {
		cfg.Relay = NopRelay{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		topics:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		instanceID: uuid.NewString(),
		presence:   cfg.Presence,
		relay:      cfg.Relay,
		clk:        cfg.Clock,
		log:        cfg.Logger.Named("ws"),
	}
}

// ─── Callbacks ───

// OnAuthorizeTopic installs the topic access check. Without one every
// authenticated user may join every topic.
func (h *Hub) OnAuthorizeTopic(fn TopicAuthorizer) { h.authorize = fn }

// OnUserFirstConnect runs (in its own goroutine) when a user's first
// connection registers.
func (h *Hub) OnUserFirstConnect(fn func(userID string)) { h.onFirstConnect = fn }

// OnUserFullyDisconnected runs (in its own goroutine) when a user's last
// connection goes away.
func (h *Hub) OnUserFullyDisconnected(fn func(userID string)) { h.onFullyDisconnect = fn }

// ─── Loop ───

// Run serves register/unregister until Shutdown. Start with `go hub.Run()`.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.quit:
			return
		}
	}
}

// ListenRelay delivers messages relayed by other instances until ctx is
// done.
func (h *Hub) ListenRelay(ctx context.Context) error {
	return h.relay.Listen(ctx, h.handleRelayed)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true
	n := len(h.clients[client.userID])
	h.mu.Unlock()

	h.log.Debug("client connected", zap.String("user_id", client.userID), zap.Int("connections", n))
	if n == 1 && h.onFirstConnect != nil {
		go h.onFirstConnect(client.userID)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.userID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	close(client.send)
	last := len(clients) == 0
	if last {
		delete(h.clients, client.userID)
	}
	for topic := range client.topics() {
		h.leaveTopicLocked(client, topic)
	}
	h.mu.Unlock()

	tracked := client.dropAll()
	h.log.Debug("client disconnected", zap.String("user_id", client.userID), zap.Bool("last", last))

	if len(tracked) > 0 {
		go h.untrackAll(client, tracked)
	}
	if last && h.onFullyDisconnect != nil {
		go h.onFullyDisconnect(client.userID)
	}
}

func (h *Hub) untrackAll(client *Client, topics []string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	for _, topic := range topics {
		if err := h.presence.Untrack(ctx, topic, client.userID, client.connID); err != nil {
			h.log.Warn("presence untrack on disconnect failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		h.syncPresence(ctx, topic, true)
	}
}

// ─── Topics ───

const storeTimeout = 5 * time.Second

// joinTopic reports false when the client has already been removed.
func (h *Hub) joinTopic(client *Client, topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client.userID][client] {
		return false
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Client]bool)
		h.topics[topic] = subs
	}
	subs[client] = true
	return true
}

func (h *Hub) leaveTopic(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveTopicLocked(client, topic)
}

func (h *Hub) leaveTopicLocked(client *Client, topic string) {
	subs := h.topics[topic]
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Subscribers counts local connections subscribed to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// presenceSnapshot reads the store and builds the presence_sync event.
func (h *Hub) presenceSnapshot(ctx context.Context, topic string) (Event, error) {
	state, err := h.presence.State(ctx, topic)
	if err != nil {
		return Event{}, err
	}
	return Event{Op: OpPresenceSync, Data: PresenceSyncData{Topic: topic, State: state}}, nil
}

// syncPresence pushes the topic's snapshot to local subscribers and, when
// relay is set, asks other instances to do the same.
func (h *Hub) syncPresence(ctx context.Context, topic string, relay bool) {
	ev, err := h.presenceSnapshot(ctx, topic)
	if err != nil {
		h.log.Warn("presence snapshot failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	h.deliverTopic(topic, ev, nil)

	if relay {
		h.publishRelay(ctx, RelayMessage{Kind: RelayPresence, Topic: topic})
	}
}

// ─── Delivery ───

// deliverTopic sends ev to every local subscriber of topic except skip.
func (h *Hub) deliverTopic(topic string, ev Event, skip *Client) {
	data, ok := h.stamp(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.topics[topic] {
		if client == skip {
			continue
		}
		h.enqueue(client, data)
	}
}

func (h *Hub) deliverUser(userID string, ev Event) {
	data, ok := h.stamp(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		h.enqueue(client, data)
	}
}

// sendTo queues ev for one connection, if it is still registered.
func (h *Hub) sendTo(client *Client, ev Event) {
	data, ok := h.stamp(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.clients[client.userID][client] {
		h.enqueue(client, data)
	}
}

func (h *Hub) stamp(ev Event) ([]byte, bool) {
	ev.Seq = h.seq.Add(1)
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to marshal event", zap.String("op", ev.Op), zap.Error(err))
		return nil, false
	}
	return data, true
}

// enqueue drops a client whose send buffer is full. Caller holds mu.RLock.
func (h *Hub) enqueue(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		go h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// publishTopic delivers locally (skipping the sender) and relays.
func (h *Hub) publishTopic(ctx context.Context, topic string, ev Event, skip *Client) {
	h.deliverTopic(topic, ev, skip)

	data, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	h.publishRelay(ctx, RelayMessage{Kind: RelayTopic, Topic: topic, Op: ev.Op, Data: data})
}

func (h *Hub) publishRelay(ctx context.Context, msg RelayMessage) {
	msg.Origin = h.instanceID
	if err := h.relay.Publish(ctx, msg); err != nil {
		h.log.Warn("relay publish failed", zap.String("kind", string(msg.Kind)), zap.Error(err))
	}
}

func (h *Hub) handleRelayed(msg RelayMessage) {
	if msg.Origin == h.instanceID {
		return
	}

	switch msg.Kind {
	case RelayTopic:
		h.deliverTopic(msg.Topic, Event{Op: msg.Op, Data: msg.Data}, nil)
	case RelayUser:
		h.deliverUser(msg.UserID, Event{Op: msg.Op, Data: msg.Data})
	case RelayPresence:
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		h.syncPresence(ctx, msg.Topic, false)
	default:
		h.log.Debug("unknown relay kind", zap.String("kind", string(msg.Kind)))
	}
}

// ─── EventPublisher ───

func (h *Hub) BroadcastChange(topic, table, action string, record any) {
	raw, err := json.Marshal(record)
	if err != nil {
		h.log.Error("failed to marshal change record", zap.String("table", table), zap.Error(err))
		return
	}
	ev := Event{Op: OpChange, Data: ChangeData{Topic: topic, Table: table, Type: action, Record: raw}}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	h.publishTopic(ctx, topic, ev, nil)
}

func (h *Hub) BroadcastToUser(userID string, event Event) {
	h.deliverUser(userID, event)

	data, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	h.publishRelay(ctx, RelayMessage{Kind: RelayUser, UserID: userID, Op: event.Op, Data: data})
}

// GetOnlineUserIDs returns the users connected to this instance, sorted.
func (h *Hub) GetOnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown stops Run and closes every connection's send queue.
func (h *Hub) Shutdown() {
	h.quitOnce.Do(func() { close(h.quit) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			close(client.send)
		}
	}
	h.clients = make(map[string]map[*Client]bool)
	h.topics = make(map[string]map[*Client]bool)
	h.log.Info("hub shut down, all connections closed")
}
