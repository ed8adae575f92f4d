package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/tradechat/database"
	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg/events"
	"github.com/akinalp/tradechat/pkg/offer"
	"github.com/akinalp/tradechat/repository"
	"github.com/akinalp/tradechat/ws"
)

// ─── Fakes ───

type changeCall struct {
	Topic, Table, Action string
	Record               any
}

type userPush struct {
	UserID string
	Event  ws.Event
}

type fakeHub struct {
	mu      sync.Mutex
	changes []changeCall
	pushes  []userPush
}

func (h *fakeHub) BroadcastChange(topic, table, action string, record any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, changeCall{topic, table, action, record})
}

func (h *fakeHub) BroadcastToUser(userID string, event ws.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushes = append(h.pushes, userPush{userID, event})
}

func (h *fakeHub) GetOnlineUserIDs() []string { return []string{} }

func (h *fakeHub) Changes() []changeCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]changeCall(nil), h.changes...)
}

func (h *fakeHub) Pushes() []userPush {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]userPush(nil), h.pushes...)
}

func (h *fakeHub) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes, h.pushes = nil, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// ─── Fixture ───

type fixture struct {
	db        *database.DB
	clk       *clock.Mock
	hub       *fakeHub
	publisher *recordingPublisher

	convRepo   repository.ConversationRepository
	msgRepo    repository.MessageRepository
	negRepo    repository.NegotiationRepository
	rrRepo     repository.ReadReceiptRepository
	meetupRepo repository.MeetupRepository

	conversations ConversationService
	messages      MessageService
	negotiation   NegotiationService
	readReceipts  ReadReceiptService
	meetups       MeetupService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "services.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	f := &fixture{
		db:         db,
		clk:        clk,
		hub:        &fakeHub{},
		publisher:  &recordingPublisher{},
		convRepo:   repository.NewSQLiteConversationRepo(db.Conn),
		msgRepo:    repository.NewSQLiteMessageRepo(db.Conn),
		negRepo:    repository.NewSQLiteNegotiationRepo(db.Conn),
		rrRepo:     repository.NewSQLiteReadReceiptRepo(db.Conn),
		meetupRepo: repository.NewSQLiteMeetupRepo(db.Conn),
	}
	f.conversations = NewConversationService(f.convRepo, clk)
	f.messages = NewMessageService(db.Conn, f.msgRepo, f.conversations, nil, f.hub, f.publisher, clk, nil)
	f.negotiation = NewNegotiationService(db.Conn, f.negRepo, f.conversations, f.hub, f.publisher, clk, nil)
	f.readReceipts = NewReadReceiptService(f.rrRepo, f.msgRepo, f.conversations, f.hub, f.publisher, clk, nil)
	f.meetups = NewMeetupService(db.Conn, f.meetupRepo, f.conversations, f.hub, f.publisher, clk, nil)
	return f
}

func (f *fixture) conversation(t *testing.T) *models.Conversation {
	t.Helper()
	conv, created, err := f.conversations.GetOrCreate(context.Background(), "bob", &models.CreateConversationRequest{
		UserID: "alice",
		Title:  "Charizard for Blastoise",
	})
	require.NoError(t, err)
	require.True(t, created)
	return conv
}

func (f *fixture) sendText(t *testing.T, convID, sender, body string) *models.Message {
	t.Helper()
	f.clk.Add(time.Second)
	msg, err := f.messages.Send(context.Background(), sender, convID, &models.CreateMessageRequest{Type: models.MessageText, Body: body})
	require.NoError(t, err)
	return msg
}

func offerRequest(t *testing.T) *models.CreateMessageRequest {
	t.Helper()
	payload, err := json.Marshal(offer.Payload{
		Offering:   []offer.CardRef{{ExternalID: "base1-4", TCG: "pokemon", Name: "Charizard", ImageURL: "https://img.example/base1-4.png"}},
		Requesting: []offer.CardRef{{ExternalID: "base1-2", TCG: "pokemon", Name: "Blastoise", ImageURL: "https://img.example/base1-2.png"}},
	})
	require.NoError(t, err)
	return &models.CreateMessageRequest{Type: models.MessageCardOffer, Payload: payload}
}

func (f *fixture) sendOffer(t *testing.T, convID, sender string) (*models.Message, error) {
	t.Helper()
	f.clk.Add(time.Second)
	return f.messages.Send(context.Background(), sender, convID, offerRequest(t))
}
