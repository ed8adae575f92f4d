// Package events publishes domain events (negotiation transitions, meetup
// changes, read pointer moves, new messages) for downstream consumers.
//
// Publishing is best effort: the database write is the source of truth and
// callers log publish failures instead of failing the request.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event.
type Type string

const (
	MessageCreated      Type = "message.created"
	NegotiationUpdated  Type = "negotiation.updated"
	ReadPointerAdvanced Type = "read_pointer.advanced"
	MeetupCreated       Type = "meetup.created"
	MeetupUpdated       Type = "meetup.updated"
)

// Event is one domain event. ConversationID is the partition key, so
// events of one conversation stay ordered.
type Event struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	ConversationID string    `json:"conversation_id"`
	ActorID        string    `json:"actor_id"`
	OccurredAt     time.Time `json:"occurred_at"`
	Data           any       `json:"data,omitempty"`
}

// New stamps an event with a fresh id.
func New(typ Type, conversationID, actorID string, at time.Time, data any) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           typ,
		ConversationID: conversationID,
		ActorID:        actorID,
		OccurredAt:     at,
		Data:           data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher drops every event. Used when Kafka is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
