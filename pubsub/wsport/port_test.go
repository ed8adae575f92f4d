package wsport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pubsub"
	"github.com/akinalp/tradechat/realtime"
	"github.com/akinalp/tradechat/ws"
)

const waitFor = 2 * time.Second

type tokenIsUser struct{}

func (tokenIsUser) ValidateAccessToken(token string) (*models.TokenClaims, error) {
	if token == "" || token == "bad" {
		return nil, errors.New("invalid")
	}
	return &models.TokenClaims{UserID: token}, nil
}

func startBroker(t *testing.T, setup ...func(*ws.Hub)) (*ws.Hub, string) {
	t.Helper()
	hub := ws.NewHub(ws.HubConfig{})
	for _, fn := range setup {
		fn(hub)
	}
	go hub.Run()

	h := ws.NewHandler(hub, tokenIsUser{}, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleConnection))
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url, user string) *Port {
	t.Helper()
	p, err := Dial(context.Background(), Config{URL: url, Token: user})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

// recorder collects events and statuses delivered to a channel.
type recorder struct {
	mu       sync.Mutex
	events   []pubsub.Event
	statuses []pubsub.Status
	errs     []error
}

func (r *recorder) handle(ev pubsub.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) status(s pubsub.Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
	r.errs = append(r.errs, err)
}

func (r *recorder) has(status pubsub.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (r *recorder) of(kind pubsub.Kind) []pubsub.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []pubsub.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func join(t *testing.T, p *Port, topic string, opts ...pubsub.ChannelOption) (pubsub.Channel, *recorder) {
	t.Helper()
	rec := &recorder{}
	ch := p.Channel(topic, opts...)
	ch.On(pubsub.KindBroadcast, pubsub.Any, rec.handle).
		On(pubsub.KindPresence, pubsub.Any, rec.handle).
		On(pubsub.KindChange, pubsub.Any, rec.handle)
	ch.Subscribe(rec.status)
	require.Eventually(t, func() bool { return rec.has(pubsub.StatusSubscribed) }, waitFor, 10*time.Millisecond)
	return ch, rec
}

func TestDialRejectsBadToken(t *testing.T) {
	_, url := startBroker(t)
	_, err := Dial(context.Background(), Config{URL: url, Token: "bad"})
	assert.Error(t, err)
}

func TestBroadcastReachesOthersOnly(t *testing.T) {
	_, url := startBroker(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")
	topic := pubsub.TypingTopic("c1")

	aliceCh, aliceRec := join(t, alice, topic)
	_, bobRec := join(t, bob, topic)

	require.NoError(t, aliceCh.Send(context.Background(), "typing", map[string]any{"user_id": "alice", "is_typing": true}))

	require.Eventually(t, func() bool { return len(bobRec.of(pubsub.KindBroadcast)) == 1 }, waitFor, 10*time.Millisecond)
	ev := bobRec.of(pubsub.KindBroadcast)[0]
	assert.Equal(t, "typing", ev.Name)
	assert.Equal(t, topic, ev.Topic)

	var payload struct {
		UserID   string `json:"user_id"`
		IsTyping bool   `json:"is_typing"`
	}
	require.NoError(t, ev.Decode(&payload))
	assert.Equal(t, "alice", payload.UserID)
	assert.True(t, payload.IsTyping)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, aliceRec.of(pubsub.KindBroadcast))
}

func TestSendRequiresSubscription(t *testing.T) {
	_, url := startBroker(t)
	alice := dial(t, url, "alice")

	ch := alice.Channel(pubsub.TypingTopic("c1"))
	assert.ErrorIs(t, ch.Send(context.Background(), "typing", nil), pubsub.ErrNotSubscribed)
	assert.ErrorIs(t, ch.Track(context.Background(), nil), pubsub.ErrNotSubscribed)

	joined, rec := join(t, alice, pubsub.TypingTopic("c2"))
	require.NoError(t, alice.RemoveChannel(joined))
	assert.True(t, rec.has(pubsub.StatusClosed))
	assert.ErrorIs(t, joined.Send(context.Background(), "typing", nil), pubsub.ErrChannelClosed)
	require.NoError(t, alice.RemoveChannel(joined))
}

func TestPresenceSnapshots(t *testing.T) {
	hub, url := startBroker(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	aliceCh, _ := join(t, alice, pubsub.PresenceGlobal, pubsub.WithPresenceKey("alice"))
	bobCh, _ := join(t, bob, pubsub.PresenceGlobal, pubsub.WithPresenceKey("bob"))

	require.NoError(t, aliceCh.Track(context.Background(), map[string]string{"status": "online"}))
	require.Eventually(t, func() bool {
		_, ok := bobCh.PresenceState()["alice"]
		return ok
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, bobCh.Track(context.Background(), nil))
	require.Eventually(t, func() bool {
		return len(aliceCh.PresenceState().Keys()) == 2
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool {
		_, ok := bobCh.PresenceState()["alice"]
		return !ok
	}, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(hub.GetOnlineUserIDs()) == 1
	}, waitFor, 10*time.Millisecond)
}

func TestChangeNotifications(t *testing.T) {
	hub, url := startBroker(t)
	bob := dial(t, url, "bob")
	topic := pubsub.ReadReceiptsTopic("c1")

	_, rec := join(t, bob, topic)

	hub.BroadcastChange(topic, "read_receipts", ws.ChangeUpdate, models.ReadReceipt{
		ConversationID:    "c1",
		UserID:            "alice",
		LastReadMessageID: "m7",
	})

	require.Eventually(t, func() bool { return len(rec.of(pubsub.KindChange)) == 1 }, waitFor, 10*time.Millisecond)
	ev := rec.of(pubsub.KindChange)[0]
	assert.Equal(t, "read_receipts", ev.Name)
	assert.Equal(t, ws.ChangeUpdate, ev.Action)

	var rr models.ReadReceipt
	require.NoError(t, ev.Decode(&rr))
	assert.Equal(t, "m7", rr.LastReadMessageID)
}

func TestDeniedSubscription(t *testing.T) {
	_, url := startBroker(t, func(h *ws.Hub) {
		h.OnAuthorizeTopic(func(_ context.Context, userID, topic string) error {
			if userID == "mallory" {
				return errors.New("forbidden: not a participant")
			}
			return nil
		})
	})
	mallory := dial(t, url, "mallory")

	rec := &recorder{}
	ch := mallory.Channel(pubsub.ConversationStatusTopic("c1"))
	ch.Subscribe(rec.status)

	require.Eventually(t, func() bool { return rec.has(pubsub.StatusChannelError) }, waitFor, 10*time.Millisecond)
	rec.mu.Lock()
	assert.Contains(t, rec.errs[0].Error(), "not a participant")
	rec.mu.Unlock()
	assert.ErrorIs(t, ch.Send(context.Background(), "x", nil), pubsub.ErrNotSubscribed)
}

func TestLocalChannelsShareOneSubscription(t *testing.T) {
	hub, url := startBroker(t)
	alice := dial(t, url, "alice")
	topic := pubsub.TypingTopic("c1")

	first, _ := join(t, alice, topic)
	second, secondRec := join(t, alice, topic)
	assert.Equal(t, 1, hub.Subscribers(topic))

	require.NoError(t, first.Send(context.Background(), "typing", map[string]bool{"is_typing": true}))
	assert.Len(t, secondRec.of(pubsub.KindBroadcast), 1)

	require.NoError(t, alice.RemoveChannel(first))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, hub.Subscribers(topic))

	require.NoError(t, alice.RemoveChannel(second))
	require.Eventually(t, func() bool { return hub.Subscribers(topic) == 0 }, waitFor, 10*time.Millisecond)
}

func TestPresenceTrackerOverWebSocket(t *testing.T) {
	_, url := startBroker(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	aliceTracker := realtime.NewPresenceTracker(alice, nil, nil)
	bobTracker := realtime.NewPresenceTracker(bob, nil, nil)
	t.Cleanup(aliceTracker.Close)
	t.Cleanup(bobTracker.Close)

	aliceTracker.Start(context.Background(), "alice")
	bobTracker.Start(context.Background(), "bob")

	require.Eventually(t, func() bool {
		return aliceTracker.IsOnline("bob") && bobTracker.IsOnline("alice")
	}, waitFor, 10*time.Millisecond)

	bobTracker.SetAppState(context.Background(), realtime.AppBackground)
	require.Eventually(t, func() bool { return !aliceTracker.IsOnline("bob") }, waitFor, 10*time.Millisecond)
}
