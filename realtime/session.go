package realtime

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/akinalp/tradechat/pkg/logger"
	"github.com/akinalp/tradechat/pubsub"
)

// SessionConfig wires a Session.
type SessionConfig struct {
	Port     pubsub.Port
	Backend  Backend
	Notifier Notifier
	UserID   string
	Typing   TypingConfig
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Session is one signed-in user's realtime state: global presence plus the
// coordinators of the conversation screen currently open.
type Session struct {
	Presence     *PresenceTracker
	Typing       *TypingCoordinator
	ReadReceipts *ReadReceiptSync
	Negotiation  *NegotiationStatusSync
	Meetup       *MeetupSync

	backend  Backend
	notifier Notifier
	userID   string
	clock    clock.Clock
	log      *zap.Logger

	mu             sync.Mutex
	conversationID string
	closed         bool
}

// NewSession builds the coordinators. Nothing is subscribed until Start.
func NewSession(cfg SessionConfig) *Session {
	log := logger.OrNop(cfg.Logger).With(zap.String("user_id", cfg.UserID))
	sched := NewScheduler(cfg.Clock)
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Session{
		Presence:     NewPresenceTracker(cfg.Port, sched, log),
		Typing:       NewTypingCoordinator(cfg.Port, sched, cfg.UserID, cfg.Typing, log),
		ReadReceipts: NewReadReceiptSync(cfg.Port, cfg.Backend, cfg.Notifier, cfg.UserID, log),
		Negotiation:  NewNegotiationStatusSync(cfg.Port, cfg.Backend, cfg.Notifier, log),
		Meetup:       NewMeetupSync(cfg.Port, cfg.Backend, cfg.Notifier, log),
		backend:      cfg.Backend,
		notifier:     notifier,
		userID:       cfg.UserID,
		clock:        clk,
		log:          log.Named("session"),
	}
}

// Start announces presence for userID.
func (s *Session) Start(ctx context.Context, userID string) {
	s.Presence.Start(ctx, userID)
}

// OpenConversation mounts the conversation screen. Calling it with a new
// id tears down the previous conversation first; an empty id unmounts.
func (s *Session) OpenConversation(ctx context.Context, conversationID, otherUserID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.conversationID = conversationID
	s.mu.Unlock()

	s.log.Debug("conversation mounted", zap.String("conversation_id", conversationID))
	s.Negotiation.SetScope(ctx, conversationID)
	s.ReadReceipts.SetScope(ctx, conversationID, otherUserID)
	s.Typing.SetConversation(conversationID)
}

// CloseConversation unmounts the conversation screen.
func (s *Session) CloseConversation() {
	s.OpenConversation(context.Background(), "", "")
	s.Meetup.SetScope(context.Background(), "")
}

// ConversationID returns the mounted conversation, or "".
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Close tears everything down. The session cannot be reused.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.conversationID = ""
	s.mu.Unlock()

	s.Typing.Close()
	s.ReadReceipts.Close()
	s.Negotiation.Close()
	s.Meetup.Close()
	s.Presence.Close()
}
