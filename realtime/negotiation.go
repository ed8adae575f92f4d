package realtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg/logger"
	"github.com/akinalp/tradechat/pubsub"
)

// NegotiationStatusSync keeps the negotiation status of one conversation.
// Change notifications are never applied directly; each one triggers a
// refetch, which tolerates missed, duplicated and reordered events.
type NegotiationStatusSync struct {
	*refetchSync[models.NegotiationStatus]
}

func NewNegotiationStatusSync(port pubsub.Port, backend NegotiationBackend, notifier Notifier, log *zap.Logger) *NegotiationStatusSync {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &NegotiationStatusSync{&refetchSync[models.NegotiationStatus]{
		port:       port,
		notifier:   notifier,
		log:        logger.OrNop(log).Named("negotiation"),
		topic:      pubsub.ConversationStatusTopic,
		errorTitle: "Couldn't load trade status",
		fetch: func(ctx context.Context, id string) (*models.NegotiationStatus, error) {
			return backend.GetNegotiationStatus(ctx, id)
		},
	}}
}

// Status returns the last fetched status, or nil.
func (s *NegotiationStatusSync) Status() *models.NegotiationStatus {
	return s.current()
}

// MeetupSync keeps one meetup, with the same refetch-on-notify policy.
type MeetupSync struct {
	*refetchSync[models.Meetup]
}

func NewMeetupSync(port pubsub.Port, backend MeetupBackend, notifier Notifier, log *zap.Logger) *MeetupSync {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &MeetupSync{&refetchSync[models.Meetup]{
		port:       port,
		notifier:   notifier,
		log:        logger.OrNop(log).Named("meetup"),
		topic:      pubsub.MeetupUpdatesTopic,
		errorTitle: "Couldn't load meetup",
		fetch: func(ctx context.Context, id string) (*models.Meetup, error) {
			return backend.GetMeetup(ctx, id)
		},
	}}
}

// Meetup returns the last fetched meetup, or nil.
func (s *MeetupSync) Meetup() *models.Meetup {
	return s.current()
}
