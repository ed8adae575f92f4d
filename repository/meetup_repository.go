package repository

import (
	"context"
	"time"

	"github.com/akinalp/tradechat/models"
)

type MeetupRepository interface {
	Create(ctx context.Context, m *models.Meetup) error
	GetByID(ctx context.Context, id string) (*models.Meetup, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Meetup, error)
	UpdateStatus(ctx context.Context, id string, status models.MeetupStatus, at time.Time) error
}
