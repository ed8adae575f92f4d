package models

import "time"

// ReadReceipt is a user's last-read pointer in a conversation.
//
// The pointer only moves forward in message recency; a write naming an
// older message leaves it unchanged.
type ReadReceipt struct {
	ConversationID    string    `json:"conversation_id"`
	UserID            string    `json:"user_id"`
	LastReadMessageID string    `json:"last_read_message_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// MarkReadRequest moves the caller's pointer.
type MarkReadRequest struct {
	MessageID string `json:"message_id"`
}
