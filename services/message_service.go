package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akinalp/tradechat/database"
	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/pkg/events"
	"github.com/akinalp/tradechat/pkg/ratelimit"
	"github.com/akinalp/tradechat/pubsub"
	"github.com/akinalp/tradechat/repository"
	"github.com/akinalp/tradechat/ws"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MessageService sends and pages conversation messages.
//
// Send stores the message and, for a card_offer, advances the negotiation
// in the same transaction. Connected clients learn about the message
// through a message_create push and about a status change through a
// change on conversation-status:{id}.
type MessageService interface {
	Send(ctx context.Context, userID, conversationID string, req *models.CreateMessageRequest) (*models.Message, error)
	List(ctx context.Context, userID, conversationID, beforeID string, limit int) (*models.MessagePage, error)
}

type messageService struct {
	db           *sql.DB
	msgRepo      repository.MessageRepository
	participants ParticipantChecker
	limiter      *ratelimit.MessageRateLimiter
	fanout       fanout
	clk          clock.Clock
}

// NewMessageService builds the service. db is needed directly for WithTx;
// limiter may be nil to disable send limits.
func NewMessageService(
	db *sql.DB,
	msgRepo repository.MessageRepository,
	participants ParticipantChecker,
	limiter *ratelimit.MessageRateLimiter,
	hub ws.EventPublisher,
	publisher events.Publisher,
	clk clock.Clock,
	log *zap.Logger,
) MessageService {
	if clk == nil {
		clk = clock.New()
	}
	return &messageService{
		db:           db,
		msgRepo:      msgRepo,
		participants: participants,
		limiter:      limiter,
		fanout:       newFanout(hub, publisher, log),
		clk:          clk,
	}
}

// Send runs in this order:
//  1. Rate limit. Checked first so a flooding client costs no DB work.
//  2. Shape validation of the request, card_offer payload included.
//  3. Participant check against the conversation.
//  4. One transaction: negotiation transition (card_offer only), message
//     insert, conversation last_message_at.
//  5. Fan-out after commit.
//
// Why one transaction for the offer and the status?
// A card_offer message and the status it implies must appear together. If
// the insert failed after the status moved, the other participant would
// see a counter offer with no offer behind it.
//
// Fan-out happens only after commit, so a client that refetches on the
// status change always finds the message already stored.
func (s *messageService) Send(ctx context.Context, userID, conversationID string, req *models.CreateMessageRequest) (*models.Message, error) {
	if s.limiter != nil && !s.limiter.Allow(userID) {
		return nil, fmt.Errorf("%w: slow down, try again in %d seconds", pkg.ErrRateLimited, s.limiter.CooldownSeconds(userID))
	}

	msg, err := req.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err)
	}

	conv, err := s.participants.RequireParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now().UTC()
	msg.ID = uuid.NewString()
	msg.ConversationID = conversationID
	msg.SenderID = userID
	msg.CreatedAt = now

	var (
		negotiation   *models.NegotiationStatus
		statusChanged bool
		action        = ws.ChangeUpdate
	)

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if msg.Type == models.MessageCardOffer {
			negRepo := repository.NewSQLiteNegotiationRepo(tx)
			cur, err := negRepo.Get(ctx, conversationID)
			if err != nil {
				return err
			}
			next, ok := models.OfferTransition(cur, userID)
			if !ok {
				return fmt.Errorf("%w: cannot send an offer while the trade is %s", pkg.ErrInvalidTransition, cur.Status)
			}
			negotiation = &models.NegotiationStatus{
				ConversationID: conversationID,
				Status:         next,
				LastActorID:    userID,
				UpdatedAt:      now,
			}
			if err := negRepo.Upsert(ctx, negotiation); err != nil {
				return err
			}
			statusChanged = cur == nil || cur.Status != next
			if cur == nil {
				action = ws.ChangeInsert
			}
		}

		if err := repository.NewSQLiteMessageRepo(tx).Create(ctx, msg); err != nil {
			return err
		}
		return repository.NewSQLiteConversationRepo(tx).TouchLastMessage(ctx, conversationID, now)
	})
	if err != nil {
		return nil, err
	}

	s.fanout.message(conv, msg)
	s.fanout.publish(ctx, events.MessageCreated, conversationID, userID, now, msg)

	if statusChanged {
		s.fanout.change(pubsub.ConversationStatusTopic(conversationID), negotiationTable, action, negotiation)
		s.fanout.publish(ctx, events.NegotiationUpdated, conversationID, userID, now, negotiation)
	}

	return msg, nil
}

func (s *messageService) List(ctx context.Context, userID, conversationID, beforeID string, limit int) (*models.MessagePage, error) {
	if _, err := s.participants.RequireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if beforeID != "" {
		cursor, err := s.msgRepo.GetByID(ctx, beforeID)
		if err != nil {
			return nil, err
		}
		if cursor.ConversationID != conversationID {
			return nil, fmt.Errorf("%w: cursor message is not in this conversation", pkg.ErrBadRequest)
		}
	}

	messages, err := s.msgRepo.ListByConversation(ctx, conversationID, beforeID, limit+1)
	if err != nil {
		return nil, err
	}

	// One extra row was asked for; its presence is the has_more signal.
	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	// Oldest first for display.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return &models.MessagePage{Messages: messages, HasMore: hasMore}, nil
}
