package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akinalp/tradechat/database"
	"github.com/akinalp/tradechat/models"
)

type sqliteNegotiationRepo struct {
	db database.TxQuerier
}

func NewSQLiteNegotiationRepo(db database.TxQuerier) NegotiationRepository {
	return &sqliteNegotiationRepo{db: db}
}

func (r *sqliteNegotiationRepo) Get(ctx context.Context, conversationID string) (*models.NegotiationStatus, error) {
	var st models.NegotiationStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT conversation_id, status, last_actor_id, updated_at
		 FROM negotiation_status WHERE conversation_id = ?`, conversationID,
	).Scan(&st.ConversationID, &st.Status, &st.LastActorID, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get negotiation status: %w", err)
	}
	return &st, nil
}

func (r *sqliteNegotiationRepo) Upsert(ctx context.Context, st *models.NegotiationStatus) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO negotiation_status (conversation_id, status, last_actor_id, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET
		     status = excluded.status,
		     last_actor_id = excluded.last_actor_id,
		     updated_at = excluded.updated_at`,
		st.ConversationID, st.Status, st.LastActorID, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert negotiation status: %w", err)
	}
	return nil
}
