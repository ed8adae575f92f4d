package main

import (
	"github.com/akinalp/tradechat/handlers"
	"github.com/akinalp/tradechat/ws"
)

// Handlers holds every HTTP handler.
type Handlers struct {
	Conversation *handlers.ConversationHandler
	Message      *handlers.MessageHandler
	Negotiation  *handlers.NegotiationHandler
	ReadReceipt  *handlers.ReadReceiptHandler
	Meetup       *handlers.MeetupHandler
	Presence     *handlers.PresenceHandler
}

func initHandlers(svcs *Services, hub *ws.Hub) *Handlers {
	return &Handlers{
		Conversation: handlers.NewConversationHandler(svcs.Conversation),
		Message:      handlers.NewMessageHandler(svcs.Message),
		Negotiation:  handlers.NewNegotiationHandler(svcs.Negotiation),
		ReadReceipt:  handlers.NewReadReceiptHandler(svcs.ReadReceipt),
		Meetup:       handlers.NewMeetupHandler(svcs.Meetup),
		Presence:     handlers.NewPresenceHandler(hub),
	}
}
