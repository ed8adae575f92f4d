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
	"github.com/akinalp/tradechat/pubsub"
	"github.com/akinalp/tradechat/repository"
	"github.com/akinalp/tradechat/ws"
)

// NegotiationService serves the authoritative negotiation status and its
// explicit transitions (counter, accept, decline, complete). Offers drive
// the status through MessageService.Send.
type NegotiationService interface {
	// Get returns (nil, nil) before the first offer.
	Get(ctx context.Context, userID, conversationID string) (*models.NegotiationStatus, error)
	Update(ctx context.Context, userID, conversationID string, req *models.UpdateNegotiationRequest) (*models.NegotiationStatus, error)
}

type negotiationService struct {
	db           *sql.DB
	negRepo      repository.NegotiationRepository
	participants ParticipantChecker
	fanout       fanout
	clk          clock.Clock
}

func NewNegotiationService(
	db *sql.DB,
	negRepo repository.NegotiationRepository,
	participants ParticipantChecker,
	hub ws.EventPublisher,
	publisher events.Publisher,
	clk clock.Clock,
	log *zap.Logger,
) NegotiationService {
	if clk == nil {
		clk = clock.New()
	}
	return &negotiationService{
		db:           db,
		negRepo:      negRepo,
		participants: participants,
		fanout:       newFanout(hub, publisher, log),
		clk:          clk,
	}
}

func (s *negotiationService) Get(ctx context.Context, userID, conversationID string) (*models.NegotiationStatus, error) {
	if _, err := s.participants.RequireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.negRepo.Get(ctx, conversationID)
}

func (s *negotiationService) Update(ctx context.Context, userID, conversationID string, req *models.UpdateNegotiationRequest) (*models.NegotiationStatus, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", pkg.ErrBadRequest, req.Status)
	}

	conv, err := s.participants.RequireParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now().UTC()
	next := &models.NegotiationStatus{
		ConversationID: conversationID,
		Status:         req.Status,
		LastActorID:    userID,
		UpdatedAt:      now,
	}
	msg := systemMessage(uuid.NewString(), conversationID, userID, "offer_"+string(req.Status), now)

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		negRepo := repository.NewSQLiteNegotiationRepo(tx)
		cur, err := negRepo.Get(ctx, conversationID)
		if err != nil {
			return err
		}
		if !models.CanUpdate(cur, userID, req.Status) {
			if cur == nil {
				return fmt.Errorf("%w: no offer has been made yet", pkg.ErrInvalidTransition)
			}
			return fmt.Errorf("%w: cannot move from %s to %s", pkg.ErrInvalidTransition, cur.Status, req.Status)
		}
		if err := negRepo.Upsert(ctx, next); err != nil {
			return err
		}
		if err := repository.NewSQLiteMessageRepo(tx).Create(ctx, msg); err != nil {
			return err
		}
		return repository.NewSQLiteConversationRepo(tx).TouchLastMessage(ctx, conversationID, now)
	})
	if err != nil {
		return nil, err
	}

	s.fanout.change(pubsub.ConversationStatusTopic(conversationID), negotiationTable, ws.ChangeUpdate, next)
	s.fanout.message(conv, msg)
	s.fanout.publish(ctx, events.NegotiationUpdated, conversationID, userID, now, next)

	return next, nil
}
