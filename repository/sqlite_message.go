package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akinalp/tradechat/database"
	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
)

type sqliteMessageRepo struct {
	db database.TxQuerier
}

func NewSQLiteMessageRepo(db database.TxQuerier) MessageRepository {
	return &sqliteMessageRepo{db: db}
}

const messageColumns = "id, conversation_id, sender_id, type, body, payload, created_at"

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	var m models.Message
	var body, payload sql.NullString

	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Type, &body, &payload, &m.CreatedAt); err != nil {
		return nil, err
	}
	if body.Valid {
		m.Body = &body.String
	}

	var raw []byte
	if payload.Valid {
		raw = []byte(payload.String)
	}
	if err := m.DecodePayload(raw); err != nil {
		return nil, fmt.Errorf("message %s: %w", m.ID, err)
	}
	return &m, nil
}

func (r *sqliteMessageRepo) Create(ctx context.Context, m *models.Message) error {
	if m.Type == models.MessageCardOffer && m.Offer == nil {
		return fmt.Errorf("%w: card_offer message without offer payload", pkg.ErrBadRequest)
	}
	payload, err := m.EncodePayload()
	if err != nil {
		return fmt.Errorf("failed to encode message payload: %w", err)
	}
	var payloadArg any
	if payload != nil {
		payloadArg = string(payload)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, type, body, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.Type, m.Body, payloadArg, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *sqliteMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

func (r *sqliteMessageRepo) ListByConversation(ctx context.Context, conversationID, beforeID string, limit int) ([]models.Message, error) {
	var query string
	var args []any

	if beforeID == "" {
		query = "SELECT " + messageColumns + ` FROM messages
			WHERE conversation_id = ?
			ORDER BY seq DESC
			LIMIT ?`
		args = []any{conversationID, limit}
	} else {
		query = "SELECT " + messageColumns + ` FROM messages
			WHERE conversation_id = ?
			  AND seq < (SELECT seq FROM messages WHERE id = ?)
			ORDER BY seq DESC
			LIMIT ?`
		args = []any{conversationID, beforeID, limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}
