package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/repository"
)

// ConversationService manages two-party conversations.
type ConversationService interface {
	// GetOrCreate returns the caller's conversation with req.UserID about
	// req.ListingID, creating it on first use. created reports which.
	GetOrCreate(ctx context.Context, userID string, req *models.CreateConversationRequest) (conv *models.Conversation, created bool, err error)
	List(ctx context.Context, userID string) ([]models.Conversation, error)
	Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error)
	Rename(ctx context.Context, userID, conversationID string, req *models.RenameConversationRequest) (*models.Conversation, error)
	ParticipantChecker
}

// ParticipantChecker is the membership check shared by the services that
// scope work to a conversation.
type ParticipantChecker interface {
	RequireParticipant(ctx context.Context, conversationID, userID string) (*models.Conversation, error)
}

type conversationService struct {
	convRepo repository.ConversationRepository
	clk      clock.Clock
}

func NewConversationService(convRepo repository.ConversationRepository, clk clock.Clock) ConversationService {
	if clk == nil {
		clk = clock.New()
	}
	return &conversationService{convRepo: convRepo, clk: clk}
}

// sortUserIDs orders a pair the way the conversations table stores it.
func sortUserIDs(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func (s *conversationService) GetOrCreate(ctx context.Context, userID string, req *models.CreateConversationRequest) (*models.Conversation, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err)
	}
	if req.UserID == userID {
		return nil, false, fmt.Errorf("%w: cannot start a conversation with yourself", pkg.ErrBadRequest)
	}

	user1, user2 := sortUserIDs(userID, req.UserID)
	existing, err := s.convRepo.GetByUsers(ctx, user1, user2, req.ListingID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	conv := &models.Conversation{
		ID:        uuid.NewString(),
		ListingID: req.ListingID,
		User1ID:   user1,
		User2ID:   user2,
		Title:     req.Title,
		CreatedAt: s.clk.Now().UTC(),
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		// Lost a race with the other participant; return their row.
		if errors.Is(err, pkg.ErrAlreadyExists) {
			existing, getErr := s.convRepo.GetByUsers(ctx, user1, user2, req.ListingID)
			if getErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	return conv, true, nil
}

func (s *conversationService) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	return s.convRepo.ListByUser(ctx, userID)
}

func (s *conversationService) Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	return s.RequireParticipant(ctx, conversationID, userID)
}

func (s *conversationService) Rename(ctx context.Context, userID, conversationID string, req *models.RenameConversationRequest) (*models.Conversation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err)
	}
	conv, err := s.RequireParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.convRepo.UpdateTitle(ctx, conversationID, req.Title); err != nil {
		return nil, err
	}
	conv.Title = req.Title
	return conv, nil
}

// RequireParticipant loads the conversation and fails with ErrForbidden
// when userID is not one of its two participants.
func (s *conversationService) RequireParticipant(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: not a participant of this conversation", pkg.ErrForbidden)
	}
	return conv, nil
}
