package repository

import (
	"context"

	"github.com/akinalp/tradechat/models"
)

// ReadReceiptRepository stores last-read pointers.
//
// Get returns (nil, nil) when the user has never read the conversation.
// AdvanceTo moves the pointer only when messageID is newer than the stored
// one and reports whether it moved.
type ReadReceiptRepository interface {
	Get(ctx context.Context, conversationID, userID string) (*models.ReadReceipt, error)
	AdvanceTo(ctx context.Context, rr *models.ReadReceipt) (bool, error)
}
