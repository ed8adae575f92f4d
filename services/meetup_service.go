package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

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

// MeetupService manages proposed in-person exchanges. Every change is
// recorded as a system message and broadcast on meetup-updates-{id}.
type MeetupService interface {
	Create(ctx context.Context, userID, conversationID string, req *models.CreateMeetupRequest) (*models.Meetup, error)
	Get(ctx context.Context, userID, meetupID string) (*models.Meetup, error)
	ListByConversation(ctx context.Context, userID, conversationID string) ([]models.Meetup, error)
	UpdateStatus(ctx context.Context, userID, meetupID string, req *models.UpdateMeetupStatusRequest) (*models.Meetup, error)
}

type meetupService struct {
	db           *sql.DB
	meetupRepo   repository.MeetupRepository
	participants ParticipantChecker
	fanout       fanout
	clk          clock.Clock
}

func NewMeetupService(
	db *sql.DB,
	meetupRepo repository.MeetupRepository,
	participants ParticipantChecker,
	hub ws.EventPublisher,
	publisher events.Publisher,
	clk clock.Clock,
	log *zap.Logger,
) MeetupService {
	if clk == nil {
		clk = clock.New()
	}
	return &meetupService{
		db:           db,
		meetupRepo:   meetupRepo,
		participants: participants,
		fanout:       newFanout(hub, publisher, log),
		clk:          clk,
	}
}

func (s *meetupService) Create(ctx context.Context, userID, conversationID string, req *models.CreateMeetupRequest) (*models.Meetup, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err)
	}

	conv, err := s.participants.RequireParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now().UTC()
	m := &models.Meetup{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		ProposedBy:     userID,
		Location:       req.Location,
		ScheduledAt:    req.ScheduledAt.UTC(),
		Status:         models.MeetupProposed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	msg := systemMessage(uuid.NewString(), conversationID, userID, "meetup_proposed", now)

	if err := s.write(ctx, conversationID, now, msg, func(repo repository.MeetupRepository) error {
		return repo.Create(ctx, m)
	}); err != nil {
		return nil, err
	}

	s.fanout.change(pubsub.MeetupUpdatesTopic(m.ID), meetupsTable, ws.ChangeInsert, m)
	s.fanout.message(conv, msg)
	s.fanout.publish(ctx, events.MeetupCreated, conversationID, userID, now, m)
	return m, nil
}

func (s *meetupService) Get(ctx context.Context, userID, meetupID string) (*models.Meetup, error) {
	m, err := s.meetupRepo.GetByID(ctx, meetupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.participants.RequireParticipant(ctx, m.ConversationID, userID); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *meetupService) ListByConversation(ctx context.Context, userID, conversationID string) ([]models.Meetup, error) {
	if _, err := s.participants.RequireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.meetupRepo.ListByConversation(ctx, conversationID)
}

func (s *meetupService) UpdateStatus(ctx context.Context, userID, meetupID string, req *models.UpdateMeetupStatusRequest) (*models.Meetup, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err)
	}

	m, err := s.meetupRepo.GetByID(ctx, meetupID)
	if err != nil {
		return nil, err
	}
	conv, err := s.participants.RequireParticipant(ctx, m.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !m.CanTransition(userID, req.Status) {
		return nil, fmt.Errorf("%w: cannot move meetup from %s to %s", pkg.ErrInvalidTransition, m.Status, req.Status)
	}

	now := s.clk.Now().UTC()
	msg := systemMessage(uuid.NewString(), m.ConversationID, userID, "meetup_"+string(req.Status), now)

	if err := s.write(ctx, m.ConversationID, now, msg, func(repo repository.MeetupRepository) error {
		return repo.UpdateStatus(ctx, meetupID, req.Status, now)
	}); err != nil {
		return nil, err
	}

	m.Status = req.Status
	m.UpdatedAt = now

	s.fanout.change(pubsub.MeetupUpdatesTopic(m.ID), meetupsTable, ws.ChangeUpdate, m)
	s.fanout.message(conv, msg)
	s.fanout.publish(ctx, events.MeetupUpdated, m.ConversationID, userID, now, m)
	return m, nil
}

// write runs fn and records msg in one transaction.
func (s *meetupService) write(ctx context.Context, conversationID string, now time.Time, msg *models.Message, fn func(repository.MeetupRepository) error) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := fn(repository.NewSQLiteMeetupRepo(tx)); err != nil {
			return err
		}
		if err := repository.NewSQLiteMessageRepo(tx).Create(ctx, msg); err != nil {
			return err
		}
		return repository.NewSQLiteConversationRepo(tx).TouchLastMessage(ctx, conversationID, now)
	})
}
