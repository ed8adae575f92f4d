package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MeetupStatus is the lifecycle of an in-person exchange.
type MeetupStatus string

const (
	MeetupProposed  MeetupStatus = "proposed"
	MeetupConfirmed MeetupStatus = "confirmed"
	MeetupCancelled MeetupStatus = "cancelled"
)

// Meetup is a proposed time and place to complete a trade.
type Meetup struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	ProposedBy     string       `json:"proposed_by"`
	Location       string       `json:"location"`
	ScheduledAt    time.Time    `json:"scheduled_at"`
	Status         MeetupStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// CanTransition reports whether actorID may move the meetup to status.
// Only the invitee confirms; either side cancels.
func (m *Meetup) CanTransition(actorID string, to MeetupStatus) bool {
	switch m.Status {
	case MeetupProposed:
		if to == MeetupConfirmed {
			return actorID != m.ProposedBy
		}
		return to == MeetupCancelled
	case MeetupConfirmed:
		return to == MeetupCancelled
	}
	return false
}

// CreateMeetupRequest proposes a meetup in a conversation.
type CreateMeetupRequest struct {
	Location    string    `json:"location"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (r *CreateMeetupRequest) Validate() error {
	r.Location = strings.TrimSpace(r.Location)
	n := utf8.RuneCountInString(r.Location)
	if n < 1 {
		return fmt.Errorf("location is required")
	}
	if n > 200 {
		return fmt.Errorf("location must be at most 200 characters")
	}
	if r.ScheduledAt.IsZero() {
		return fmt.Errorf("scheduled_at is required")
	}
	return nil
}

// UpdateMeetupStatusRequest confirms or cancels a meetup.
type UpdateMeetupStatusRequest struct {
	Status MeetupStatus `json:"status"`
}

func (r *UpdateMeetupStatusRequest) Validate() error {
	switch r.Status {
	case MeetupConfirmed, MeetupCancelled:
		return nil
	}
	return fmt.Errorf("status must be confirmed or cancelled")
}
