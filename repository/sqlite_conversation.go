package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akinalp/tradechat/database"
	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
)

type sqliteConversationRepo struct {
	db database.TxQuerier
}

func NewSQLiteConversationRepo(db database.TxQuerier) ConversationRepository {
	return &sqliteConversationRepo{db: db}
}

const conversationColumns = "id, listing_id, user1_id, user2_id, title, created_at, last_message_at"

func scanConversation(row interface{ Scan(...any) error }) (*models.Conversation, error) {
	var c models.Conversation
	var listingID sql.NullString
	var lastMessageAt sql.NullTime

	if err := row.Scan(&c.ID, &listingID, &c.User1ID, &c.User2ID, &c.Title, &c.CreatedAt, &lastMessageAt); err != nil {
		return nil, err
	}
	if listingID.Valid {
		c.ListingID = &listingID.String
	}
	if lastMessageAt.Valid {
		c.LastMessageAt = &lastMessageAt.Time
	}
	return &c, nil
}

func (r *sqliteConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversation not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

func (r *sqliteConversationRepo) GetByUsers(ctx context.Context, user1ID, user2ID string, listingID *string) (*models.Conversation, error) {
	listing := ""
	if listingID != nil {
		listing = *listingID
	}
	c, err := scanConversation(r.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+` FROM conversations
		 WHERE user1_id = ? AND user2_id = ? AND COALESCE(listing_id, '') = ?`,
		user1ID, user2ID, listing))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation by users: %w", err)
	}
	return c, nil
}

// ListByUser returns the user's conversations, most recently active first.
func (r *sqliteConversationRepo) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+conversationColumns+` FROM conversations
		 WHERE user1_id = ? OR user2_id = ?
		 ORDER BY COALESCE(last_message_at, created_at) DESC`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return conversations, nil
}

func (r *sqliteConversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, listing_id, user1_id, user2_id, title, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ListingID, c.User1ID, c.User2ID, c.Title, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: conversation already exists", pkg.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (r *sqliteConversationRepo) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE conversations SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	return expectOneRow(res, "conversation")
}

func (r *sqliteConversationRepo) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, "UPDATE conversations SET last_message_at = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("failed to update last message time: %w", err)
	}
	return expectOneRow(res, "conversation")
}
