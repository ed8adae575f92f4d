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

type sqliteMeetupRepo struct {
	db database.TxQuerier
}

func NewSQLiteMeetupRepo(db database.TxQuerier) MeetupRepository {
	return &sqliteMeetupRepo{db: db}
}

const meetupColumns = "id, conversation_id, proposed_by, location, scheduled_at, status, created_at, updated_at"

func scanMeetup(row interface{ Scan(...any) error }) (*models.Meetup, error) {
	var m models.Meetup
	err := row.Scan(&m.ID, &m.ConversationID, &m.ProposedBy, &m.Location,
		&m.ScheduledAt, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *sqliteMeetupRepo) Create(ctx context.Context, m *models.Meetup) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO meetups ("+meetupColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.ConversationID, m.ProposedBy, m.Location,
		m.ScheduledAt, m.Status, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create meetup: %w", err)
	}
	return nil
}

func (r *sqliteMeetupRepo) GetByID(ctx context.Context, id string) (*models.Meetup, error) {
	m, err := scanMeetup(r.db.QueryRowContext(ctx,
		"SELECT "+meetupColumns+" FROM meetups WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: meetup not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meetup: %w", err)
	}
	return m, nil
}

func (r *sqliteMeetupRepo) ListByConversation(ctx context.Context, conversationID string) ([]models.Meetup, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+meetupColumns+" FROM meetups WHERE conversation_id = ? ORDER BY scheduled_at",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetups: %w", err)
	}
	defer rows.Close()

	meetups := []models.Meetup{}
	for rows.Next() {
		m, err := scanMeetup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meetup: %w", err)
		}
		meetups = append(meetups, *m)
	}
	return meetups, rows.Err()
}

func (r *sqliteMeetupRepo) UpdateStatus(ctx context.Context, id string, status models.MeetupStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE meetups SET status = ?, updated_at = ? WHERE id = ?", status, at, id)
	if err != nil {
		return fmt.Errorf("failed to update meetup status: %w", err)
	}
	return expectOneRow(res, "meetup")
}
