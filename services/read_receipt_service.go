package services

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/pkg/events"
	"github.com/akinalp/tradechat/pubsub"
	"github.com/akinalp/tradechat/repository"
	"github.com/akinalp/tradechat/ws"
)

// ReadReceiptService moves and serves last-read pointers.
//
// MarkRead is monotonic: naming a message older than the current pointer
// is accepted and changes nothing. Only a pointer that actually moved is
// broadcast on read-receipts-{id}.
type ReadReceiptService interface {
	MarkRead(ctx context.Context, userID, conversationID string, req *models.MarkReadRequest) (*models.ReadReceipt, error)

	// Get returns userID's pointer in the conversation. A user who has
	// read nothing gets a receipt with an empty LastReadMessageID.
	Get(ctx context.Context, requesterID, conversationID, userID string) (*models.ReadReceipt, error)
}

type readReceiptService struct {
	rrRepo       repository.ReadReceiptRepository
	msgRepo      repository.MessageRepository
	participants ParticipantChecker
	fanout       fanout
	clk          clock.Clock
}

func NewReadReceiptService(
	rrRepo repository.ReadReceiptRepository,
	msgRepo repository.MessageRepository,
	participants ParticipantChecker,
	hub ws.EventPublisher,
	publisher events.Publisher,
	clk clock.Clock,
	log *zap.Logger,
) ReadReceiptService {
	if clk == nil {
		clk = clock.New()
	}
	return &readReceiptService{
		rrRepo:       rrRepo,
		msgRepo:      msgRepo,
		participants: participants,
		fanout:       newFanout(hub, publisher, log),
		clk:          clk,
	}
}

func (s *readReceiptService) MarkRead(ctx context.Context, userID, conversationID string, req *models.MarkReadRequest) (*models.ReadReceipt, error) {
	if req.MessageID == "" {
		return nil, fmt.Errorf("%w: message_id is required", pkg.ErrBadRequest)
	}

	if _, err := s.participants.RequireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	msg, err := s.msgRepo.GetByID(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.ConversationID != conversationID {
		return nil, fmt.Errorf("%w: message is not in this conversation", pkg.ErrBadRequest)
	}

	now := s.clk.Now().UTC()
	rr := &models.ReadReceipt{
		ConversationID:    conversationID,
		UserID:            userID,
		LastReadMessageID: req.MessageID,
		UpdatedAt:         now,
	}

	advanced, err := s.rrRepo.AdvanceTo(ctx, rr)
	if err != nil {
		return nil, err
	}
	if !advanced {
		return s.get(ctx, conversationID, userID)
	}

	s.fanout.change(pubsub.ReadReceiptsTopic(conversationID), readReceiptsTable, ws.ChangeUpdate, rr)
	s.fanout.publish(ctx, events.ReadPointerAdvanced, conversationID, userID, now, rr)
	return rr, nil
}

func (s *readReceiptService) Get(ctx context.Context, requesterID, conversationID, userID string) (*models.ReadReceipt, error) {
	conv, err := s.participants.RequireParticipant(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: user is not a participant of this conversation", pkg.ErrNotFound)
	}
	return s.get(ctx, conversationID, userID)
}

func (s *readReceiptService) get(ctx context.Context, conversationID, userID string) (*models.ReadReceipt, error) {
	rr, err := s.rrRepo.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if rr == nil {
		return &models.ReadReceipt{ConversationID: conversationID, UserID: userID}, nil
	}
	return rr, nil
}
