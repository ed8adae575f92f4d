package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akinalp/tradechat/database"
	"github.com/akinalp/tradechat/models"
)

type sqliteReadReceiptRepo struct {
	db database.TxQuerier
}

func NewSQLiteReadReceiptRepo(db database.TxQuerier) ReadReceiptRepository {
	return &sqliteReadReceiptRepo{db: db}
}

func (r *sqliteReadReceiptRepo) Get(ctx context.Context, conversationID, userID string) (*models.ReadReceipt, error) {
	var rr models.ReadReceipt
	err := r.db.QueryRowContext(ctx,
		`SELECT conversation_id, user_id, last_read_message_id, updated_at
		 FROM read_receipts WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&rr.ConversationID, &rr.UserID, &rr.LastReadMessageID, &rr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get read receipt: %w", err)
	}
	return &rr, nil
}

// AdvanceTo upserts the pointer. The conflict branch only fires when the
// new message sorts after the stored one by seq, so older or equal writes
// affect no rows.
func (r *sqliteReadReceiptRepo) AdvanceTo(ctx context.Context, rr *models.ReadReceipt) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO read_receipts (conversation_id, user_id, last_read_message_id, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(conversation_id, user_id) DO UPDATE SET
		     last_read_message_id = excluded.last_read_message_id,
		     updated_at = excluded.updated_at
		 WHERE (SELECT seq FROM messages WHERE id = excluded.last_read_message_id)
		     > COALESCE((SELECT seq FROM messages WHERE id = read_receipts.last_read_message_id), 0)`,
		rr.ConversationID, rr.UserID, rr.LastReadMessageID, rr.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to advance read receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
