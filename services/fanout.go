package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg/events"
	"github.com/akinalp/tradechat/ws"
)

// Table names carried by change notifications.
const (
	negotiationTable  = "negotiation_status"
	readReceiptsTable = "read_receipts"
	meetupsTable      = "meetups"
)

// fanout pushes committed writes to connected clients and to the domain
// event stream. It only runs after the transaction commits; failures are
// logged, never returned.
type fanout struct {
	hub       ws.EventPublisher
	publisher events.Publisher
	log       *zap.Logger
}

func newFanout(hub ws.EventPublisher, publisher events.Publisher, log *zap.Logger) fanout {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return fanout{hub: hub, publisher: publisher, log: log}
}

// message delivers a stored message to every connection of both parties.
func (f fanout) message(conv *models.Conversation, msg *models.Message) {
	ev := ws.Event{Op: ws.OpMessageCreate, Data: msg}
	f.hub.BroadcastToUser(conv.User1ID, ev)
	f.hub.BroadcastToUser(conv.User2ID, ev)
}

func (f fanout) change(topic, table, action string, record any) {
	f.hub.BroadcastChange(topic, table, action, record)
}

func (f fanout) publish(ctx context.Context, typ events.Type, conversationID, actorID string, at time.Time, data any) {
	ev := events.New(typ, conversationID, actorID, at, data)
	if err := f.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		f.log.Warn("failed to publish domain event",
			zap.String("type", string(typ)),
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

// systemMessage builds the server generated message recording event.
func systemMessage(id, conversationID, actorID, event string, at time.Time) *models.Message {
	return &models.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       actorID,
		Type:           models.MessageSystem,
		System:         &models.SystemPayload{Event: event},
		CreatedAt:      at,
	}
}
