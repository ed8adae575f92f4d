package realtime

import (
	"context"

	"github.com/akinalp/tradechat/models"
)

// Notifier surfaces durable-state failures to the user. notify.Center
// implements it.
type Notifier interface {
	Error(title string, err error)
}

type nopNotifier struct{}

func (nopNotifier) Error(string, error) {}

// ReadReceiptBackend is the read-pointer part of the backend query surface.
type ReadReceiptBackend interface {
	MarkRead(ctx context.Context, conversationID, messageID string) error
	GetReadReceipt(ctx context.Context, conversationID, userID string) (*models.ReadReceipt, error)
}

// NegotiationBackend fetches the authoritative negotiation status.
type NegotiationBackend interface {
	GetNegotiationStatus(ctx context.Context, conversationID string) (*models.NegotiationStatus, error)
}

// MeetupBackend fetches a meetup.
type MeetupBackend interface {
	GetMeetup(ctx context.Context, meetupID string) (*models.Meetup, error)
}

// ComposeBackend carries the user's own writes: messages, card offers
// included, and explicit negotiation transitions.
type ComposeBackend interface {
	SendMessage(ctx context.Context, conversationID string, req models.CreateMessageRequest) (*models.Message, error)
	UpdateNegotiation(ctx context.Context, conversationID string, to models.NegotiationState) (*models.NegotiationStatus, error)
}

// Backend is everything a Session needs from the server.
type Backend interface {
	ReadReceiptBackend
	NegotiationBackend
	MeetupBackend
	ComposeBackend
}
