package repository

import (
	"context"

	"github.com/akinalp/tradechat/models"
)

// NegotiationRepository stores one negotiation status row per conversation.
// Get returns (nil, nil) before the first offer.
type NegotiationRepository interface {
	Get(ctx context.Context, conversationID string) (*models.NegotiationStatus, error)
	Upsert(ctx context.Context, st *models.NegotiationStatus) error
}
