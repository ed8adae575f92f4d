// Package models holds the domain types shared by the backend layers, the
// HTTP client and the realtime core.
package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength is the upper bound for a conversation title, in runes.
const MaxTitleLength = 100

// Conversation is a two-party trade chat, optionally about a listing.
//
// user1_id < user2_id is enforced by the service so a pair of users (per
// listing) maps to a single row.
type Conversation struct {
	ID            string     `json:"id"`
	ListingID     *string    `json:"listing_id"`
	User1ID       string     `json:"user1_id"`
	User2ID       string     `json:"user2_id"`
	Title         string     `json:"title"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

// HasParticipant reports whether userID is one of the two parties.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.User1ID == userID || c.User2ID == userID)
}

// Counterpart returns the other party, or "" if userID is not a party.
func (c *Conversation) Counterpart(userID string) string {
	switch userID {
	case c.User1ID:
		return c.User2ID
	case c.User2ID:
		return c.User1ID
	}
	return ""
}

// CreateConversationRequest opens (or returns) the conversation between the
// caller and UserID.
type CreateConversationRequest struct {
	UserID    string  `json:"user_id"`
	ListingID *string `json:"listing_id,omitempty"`
	Title     string  `json:"title"`
}

func (r *CreateConversationRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.Title == "" {
		return nil
	}
	title, err := ValidateTitle(r.Title)
	if err != nil {
		return err
	}
	r.Title = title
	return nil
}

// RenameConversationRequest changes a conversation title.
type RenameConversationRequest struct {
	Title string `json:"title"`
}

func (r *RenameConversationRequest) Validate() error {
	title, err := ValidateTitle(r.Title)
	if err != nil {
		return err
	}
	r.Title = title
	return nil
}

// ValidateTitle trims title and checks it is 1-100 runes long.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n < 1 {
		return "", fmt.Errorf("title is required")
	}
	if n > MaxTitleLength {
		return "", fmt.Errorf("title must be at most %d characters", MaxTitleLength)
	}
	return title, nil
}
