package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
)

func conversationPath(id string, rest ...string) string {
	p := "/api/conversations/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// ─── realtime.Backend ───

func (c *Client) MarkRead(ctx context.Context, conversationID, messageID string) error {
	return c.do(ctx, http.MethodPost, conversationPath(conversationID, "read"), nil,
		models.MarkReadRequest{MessageID: messageID}, nil)
}

func (c *Client) GetReadReceipt(ctx context.Context, conversationID, userID string) (*models.ReadReceipt, error) {
	var rr models.ReadReceipt
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, "read-receipts", url.PathEscape(userID)), nil, nil, &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

// GetNegotiationStatus returns (nil, nil) before the first offer.
func (c *Client) GetNegotiationStatus(ctx context.Context, conversationID string) (*models.NegotiationStatus, error) {
	var st *models.NegotiationStatus
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, "negotiation"), nil, nil, &st); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *Client) GetMeetup(ctx context.Context, meetupID string) (*models.Meetup, error) {
	var m models.Meetup
	if err := c.do(ctx, http.MethodGet, "/api/meetups/"+url.PathEscape(meetupID), nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ─── Conversations ───

func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	convs := []models.Conversation{}
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (c *Client) GetOrCreateConversation(ctx context.Context, req models.CreateConversationRequest) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/conversations", nil, req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID), nil, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// RenameConversation rejects an empty or over-long title without a
// network call.
func (c *Client) RenameConversation(ctx context.Context, conversationID, title string) (*models.Conversation, error) {
	title, err := models.ValidateTitle(title)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err)
	}

	var conv models.Conversation
	if err := c.do(ctx, http.MethodPatch, conversationPath(conversationID), nil,
		models.RenameConversationRequest{Title: title}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ─── Messages ───

func (c *Client) SendMessage(ctx context.Context, conversationID string, req models.CreateMessageRequest) (*models.Message, error) {
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "messages"), nil, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages pages backwards; beforeID empty starts at the newest
// message. A limit of 0 uses the server default.
func (c *Client) ListMessages(ctx context.Context, conversationID, beforeID string, limit int) (*models.MessagePage, error) {
	q := url.Values{}
	if beforeID != "" {
		q.Set("before", beforeID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page models.MessagePage
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, "messages"), q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ─── Negotiation ───

func (c *Client) UpdateNegotiation(ctx context.Context, conversationID string, to models.NegotiationState) (*models.NegotiationStatus, error) {
	var st models.NegotiationStatus
	if err := c.do(ctx, http.MethodPatch, conversationPath(conversationID, "negotiation"), nil,
		models.UpdateNegotiationRequest{Status: to}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ─── Meetups ───

func (c *Client) CreateMeetup(ctx context.Context, conversationID string, req models.CreateMeetupRequest) (*models.Meetup, error) {
	var m models.Meetup
	if err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "meetups"), nil, req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) ListMeetups(ctx context.Context, conversationID string) ([]models.Meetup, error) {
	meetups := []models.Meetup{}
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, "meetups"), nil, nil, &meetups); err != nil {
		return nil, err
	}
	return meetups, nil
}

func (c *Client) UpdateMeetupStatus(ctx context.Context, meetupID string, status models.MeetupStatus) (*models.Meetup, error) {
	var m models.Meetup
	if err := c.do(ctx, http.MethodPatch, "/api/meetups/"+url.PathEscape(meetupID), nil,
		models.UpdateMeetupStatusRequest{Status: status}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ─── Presence ───

func (c *Client) OnlineUsers(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := c.do(ctx, http.MethodGet, "/api/presence/online", nil, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
