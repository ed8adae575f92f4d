package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/tradechat/config"
	"github.com/akinalp/tradechat/database"
	"github.com/akinalp/tradechat/pkg/events"
	"github.com/akinalp/tradechat/pkg/ratelimit"
	"github.com/akinalp/tradechat/services"
	"github.com/akinalp/tradechat/ws"
)

// Services holds every service instance plus the limiters they share.
type Services struct {
	Token        services.TokenService
	Conversation services.ConversationService
	Message      services.MessageService
	Negotiation  services.NegotiationService
	ReadReceipt  services.ReadReceiptService
	Meetup       services.MeetupService
	Authorizer   *services.TopicAuthorizer

	ConnectLimiter *ratelimit.ConnectRateLimiter
	MessageLimiter *ratelimit.MessageRateLimiter
}

// initServices builds the service layer. ConversationService is built
// first because the others check participation through it.
func initServices(
	db *database.DB,
	repos *Repositories,
	hub *ws.Hub,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *Services {
	connectLimiter := ratelimit.NewConnectRateLimiter(cfg.Realtime.ConnectPerMinute, time.Minute, nil)
	messageLimiter := ratelimit.NewMessageRateLimiter(
		cfg.Realtime.MessageLimit,
		cfg.Realtime.MessageWindow,
		cfg.Realtime.MessageCooldown,
		nil,
	)

	token := services.NewTokenService(cfg.JWT.Secret, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute, nil)
	conversation := services.NewConversationService(repos.Conversation, nil)

	return &Services{
		Token:        token,
		Conversation: conversation,
		Message: services.NewMessageService(
			db.Conn, repos.Message, conversation, messageLimiter, hub, publisher, nil, log,
		),
		Negotiation: services.NewNegotiationService(
			db.Conn, repos.Negotiation, conversation, hub, publisher, nil, log,
		),
		ReadReceipt: services.NewReadReceiptService(
			repos.ReadReceipt, repos.Message, conversation, hub, publisher, nil, log,
		),
		Meetup: services.NewMeetupService(
			db.Conn, repos.Meetup, conversation, hub, publisher, nil, log,
		),
		Authorizer: services.NewTopicAuthorizer(
			repos.Conversation, repos.Meetup, cfg.Realtime.MembershipCacheTTL, nil,
		),
		ConnectLimiter: connectLimiter,
		MessageLimiter: messageLimiter,
	}
}

// Close stops the background cleanup loops.
func (s *Services) Close() {
	s.ConnectLimiter.Close()
	s.MessageLimiter.Close()
	s.Authorizer.Close()
}
