package repository

import (
	"context"
	"time"

	"github.com/akinalp/tradechat/models"
)

// ConversationRepository stores conversations.
//
// GetByUsers returns (nil, nil) when the pair has no conversation yet;
// user1ID < user2ID is the caller's job.
type ConversationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	GetByUsers(ctx context.Context, user1ID, user2ID string, listingID *string) (*models.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]models.Conversation, error)
	Create(ctx context.Context, conv *models.Conversation) error
	UpdateTitle(ctx context.Context, id, title string) error
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
}
