package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/pkg/offer"
	"github.com/akinalp/tradechat/pubsub"
)

const tradeOffer = `{
	"offering":   [{"externalId": "sv1-13", "tcg": "pokemon", "name": "Sprigatito", "imageUrl": ""}],
	"requesting": [{"externalId": "sv1-35", "tcg": "pokemon", "name": "Fuecoco", "imageUrl": ""}]
}`

// serverStatus is the negotiation status the fake server reports.
type serverStatus struct {
	mu sync.Mutex
	st *models.NegotiationStatus
}

func (s *serverStatus) set(st *models.NegotiationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = st
}

func (s *serverStatus) get(context.Context, int, string) (*models.NegotiationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st, nil
}

func newComposeSession(t *testing.T, backend *fakeBackend, notifier Notifier) *Session {
	t.Helper()
	s := NewSession(SessionConfig{
		Port:     pubsub.NewMemoryBroker(nil),
		Backend:  backend,
		Notifier: notifier,
		UserID:   "me",
		Clock:    clock.NewMock(),
	})
	t.Cleanup(s.Close)
	return s
}

func waitStatus(t *testing.T, s *Session, want models.NegotiationState) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := s.Negotiation.Status()
		return st != nil && st.Status == want
	}, time.Second, time.Millisecond, want)
}

func TestSendOfferShowsStatusBeforeServerAnswers(t *testing.T) {
	server := &serverStatus{}
	gate := make(chan struct{})
	backend := &fakeBackend{status: server.get}
	backend.send = func(ctx context.Context, conversationID string, req models.CreateMessageRequest) (*models.Message, error) {
		<-gate
		server.set(&models.NegotiationStatus{ConversationID: conversationID, Status: models.NegotiationPending, LastActorID: "me"})
		return &models.Message{ID: "m1", ConversationID: conversationID, SenderID: "me", Type: req.Type}, nil
	}
	s := newComposeSession(t, backend, nil)
	ctx := context.Background()

	s.OpenConversation(ctx, "c1", "them")
	require.Eventually(t, func() bool { return backend.statusCallCount() == 1 }, time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := s.SendOffer(ctx, json.RawMessage(tradeOffer))
		done <- err
	}()

	waitStatus(t, s, models.NegotiationPending)
	assert.Equal(t, "me", s.Negotiation.Status().LastActorID)

	close(gate)
	require.NoError(t, <-done)
	require.Eventually(t, func() bool { return backend.statusCallCount() == 2 }, time.Second, time.Millisecond, "refetch after send")

	sent := backend.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, models.MessageCardOffer, sent[0].Type)
	o := offer.Parse(sent[0].Payload)
	require.NotNil(t, o)
	assert.Equal(t, "Sprigatito", o.Offering[0].Name)
	assert.True(t, o.IsTradeOnly)
}

func TestSendOfferFailureRestoresStatusAndNotifies(t *testing.T) {
	server := &serverStatus{st: &models.NegotiationStatus{ConversationID: "c1", Status: models.NegotiationPending, LastActorID: "them"}}
	var during models.NegotiationState
	notifier := &recordingNotifier{}
	backend := &fakeBackend{status: server.get}
	s := newComposeSession(t, backend, notifier)
	backend.send = func(context.Context, string, models.CreateMessageRequest) (*models.Message, error) {
		during = s.Negotiation.Status().Status
		return nil, errors.New("offline")
	}
	ctx := context.Background()

	s.OpenConversation(ctx, "c1", "them")
	waitStatus(t, s, models.NegotiationPending)

	_, err := s.SendOffer(ctx, json.RawMessage(tradeOffer))
	require.Error(t, err)

	assert.Equal(t, models.NegotiationCountered, during, "counter shown while the send is in flight")
	assert.Equal(t, models.NegotiationPending, s.Negotiation.Status().Status)
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "Couldn't send offer", notifier.titles[0])
}

func TestSendOfferRejectsInvalidOffer(t *testing.T) {
	notifier := &recordingNotifier{}
	backend := &fakeBackend{status: (&serverStatus{}).get}
	s := newComposeSession(t, backend, notifier)
	ctx := context.Background()

	_, err := s.SendOffer(ctx, json.RawMessage(tradeOffer))
	assert.ErrorIs(t, err, ErrNoConversation)

	s.OpenConversation(ctx, "c1", "them")
	for _, raw := range []any{
		json.RawMessage(`{"offering": "nope", "requesting": []}`),
		json.RawMessage(`{"offering": [{"tcg": "pokemon", "name": "Sprigatito", "imageUrl": ""}], "requesting": []}`),
		"not an offer",
		nil,
	} {
		_, err := s.SendOffer(ctx, raw)
		assert.ErrorIs(t, err, pkg.ErrBadRequest)
	}

	assert.Empty(t, backend.sentMessages())
	assert.Equal(t, 0, notifier.count())
}

func TestUpdateNegotiationAppliesThenFollowsServer(t *testing.T) {
	server := &serverStatus{st: &models.NegotiationStatus{ConversationID: "c1", Status: models.NegotiationPending, LastActorID: "them"}}
	backend := &fakeBackend{status: server.get}
	backend.update = func(_ context.Context, conversationID string, to models.NegotiationState) (*models.NegotiationStatus, error) {
		st := &models.NegotiationStatus{ConversationID: conversationID, Status: to, LastActorID: "me"}
		server.set(st)
		return st, nil
	}
	s := newComposeSession(t, backend, nil)
	ctx := context.Background()

	s.OpenConversation(ctx, "c1", "them")
	waitStatus(t, s, models.NegotiationPending)

	st, err := s.UpdateNegotiation(ctx, models.NegotiationAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.NegotiationAccepted, st.Status)
	waitStatus(t, s, models.NegotiationAccepted)
}

func TestUpdateNegotiationFailureRestoresStatusAndNotifies(t *testing.T) {
	server := &serverStatus{st: &models.NegotiationStatus{ConversationID: "c1", Status: models.NegotiationPending, LastActorID: "them"}}
	notifier := &recordingNotifier{}
	backend := &fakeBackend{status: server.get}
	s := newComposeSession(t, backend, notifier)
	var during models.NegotiationState
	backend.update = func(context.Context, string, models.NegotiationState) (*models.NegotiationStatus, error) {
		during = s.Negotiation.Status().Status
		return nil, pkg.ErrInvalidTransition
	}
	ctx := context.Background()

	s.OpenConversation(ctx, "c1", "them")
	waitStatus(t, s, models.NegotiationPending)

	_, err := s.UpdateNegotiation(ctx, models.NegotiationDeclined)
	assert.ErrorIs(t, err, pkg.ErrInvalidTransition)
	assert.Equal(t, models.NegotiationDeclined, during)
	assert.Equal(t, models.NegotiationPending, s.Negotiation.Status().Status)
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "Couldn't update trade", notifier.titles[0])
}

func TestUpdateNegotiationRefusesOwnProposal(t *testing.T) {
	server := &serverStatus{st: &models.NegotiationStatus{ConversationID: "c1", Status: models.NegotiationPending, LastActorID: "me"}}
	calls := 0
	backend := &fakeBackend{status: server.get}
	backend.update = func(context.Context, string, models.NegotiationState) (*models.NegotiationStatus, error) {
		calls++
		return nil, nil
	}
	s := newComposeSession(t, backend, nil)
	ctx := context.Background()

	s.OpenConversation(ctx, "c1", "them")
	waitStatus(t, s, models.NegotiationPending)

	_, err := s.UpdateNegotiation(ctx, models.NegotiationAccepted)
	assert.ErrorIs(t, err, pkg.ErrInvalidTransition)
	assert.Equal(t, 0, calls)
	assert.Equal(t, models.NegotiationPending, s.Negotiation.Status().Status)
}
