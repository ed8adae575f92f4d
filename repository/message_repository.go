package repository

import (
	"context"

	"github.com/akinalp/tradechat/models"
)

// MessageRepository stores chat messages.
//
// ListByConversation pages backwards: beforeID empty starts from the newest
// message, otherwise returns messages older than beforeID. Results are
// newest first; callers reverse for display.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID, beforeID string, limit int) ([]models.Message, error)
}
