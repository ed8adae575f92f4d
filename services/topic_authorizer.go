package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/pkg/cache"
	"github.com/akinalp/tradechat/pubsub"
	"github.com/akinalp/tradechat/repository"
)

// TopicAuthorizer decides which broker topics a user may join.
//
//	presence:global            any authenticated user
//	conversation-status:{id}   participants of conversation id
//	read-receipts-{id}         participants of conversation id
//	typing:{id}                participants of conversation id
//	meetup-updates-{id}        participants of the meetup's conversation
//
// Granted lookups are cached per (user, topic); denials are not, so a
// freshly created conversation is joinable at once.
//
// Cache lifetime:
// Participants of a conversation never change once it exists, so a grant
// cannot become wrong while it is cached. The TTL only bounds memory for
// users who have gone away.
type TopicAuthorizer struct {
	convRepo   repository.ConversationRepository
	meetupRepo repository.MeetupRepository
	granted    *cache.TTLCache[string, struct{}]
}

func NewTopicAuthorizer(
	convRepo repository.ConversationRepository,
	meetupRepo repository.MeetupRepository,
	ttl time.Duration,
	clk clock.Clock,
) *TopicAuthorizer {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &TopicAuthorizer{
		convRepo:   convRepo,
		meetupRepo: meetupRepo,
		granted:    cache.New[string, struct{}](ttl, ttl, clk),
	}
}

func grantKey(userID, topic string) string {
	return userID + "|" + topic
}

// Authorize matches ws.TopicAuthorizer.
func (a *TopicAuthorizer) Authorize(ctx context.Context, userID, topic string) error {
	key := grantKey(userID, topic)
	if _, ok := a.granted.Get(key); ok {
		return nil
	}

	kind, id, ok := pubsub.ParseTopic(topic)
	if !ok {
		return fmt.Errorf("%w: unknown topic %q", pkg.ErrBadRequest, topic)
	}

	var conversationID string
	switch kind {
	case pubsub.TopicPresence:
		return nil
	case pubsub.TopicConversationStatus, pubsub.TopicReadReceipts, pubsub.TopicTyping:
		conversationID = id
	case pubsub.TopicMeetupUpdates:
		m, err := a.meetupRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		conversationID = m.ConversationID
	default:
		return fmt.Errorf("%w: unknown topic %q", pkg.ErrBadRequest, topic)
	}

	conv, err := a.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return fmt.Errorf("%w: not a participant of this conversation", pkg.ErrForbidden)
	}

	a.granted.Set(key, struct{}{})
	return nil
}

// InvalidateUser forgets every grant cached for userID.
func (a *TopicAuthorizer) InvalidateUser(userID string) {
	prefix := userID + "|"
	a.granted.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

func (a *TopicAuthorizer) Close() {
	a.granted.Close()
}
