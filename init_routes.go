package main

import (
	"net/http"

	"github.com/akinalp/tradechat/middleware"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/services"
	"github.com/akinalp/tradechat/ws"
)

// initRoutes builds the middleware chain and registers every endpoint.
func initRoutes(
	mux *http.ServeMux,
	h *Handlers,
	tokenService services.TokenService,
	wsHandler *ws.Handler,
) {
	authMw := middleware.NewAuthMiddleware(tokenService)
	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(handler)
	}

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		pkg.JSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "tradechat"})
	})

	// Conversations
	mux.Handle("GET /api/conversations", auth(h.Conversation.List))
	mux.Handle("POST /api/conversations", auth(h.Conversation.Create))
	mux.Handle("GET /api/conversations/{id}", auth(h.Conversation.Get))
	mux.Handle("PATCH /api/conversations/{id}", auth(h.Conversation.Rename))

	// Messages
	mux.Handle("GET /api/conversations/{id}/messages", auth(h.Message.List))
	mux.Handle("POST /api/conversations/{id}/messages", auth(h.Message.Send))

	// Read receipts
	mux.Handle("POST /api/conversations/{id}/read", auth(h.ReadReceipt.MarkRead))
	mux.Handle("GET /api/conversations/{id}/read-receipts/{userId}", auth(h.ReadReceipt.Get))

	// Negotiation
	mux.Handle("GET /api/conversations/{id}/negotiation", auth(h.Negotiation.Get))
	mux.Handle("PATCH /api/conversations/{id}/negotiation", auth(h.Negotiation.Update))

	// Meetups
	mux.Handle("GET /api/conversations/{id}/meetups", auth(h.Meetup.List))
	mux.Handle("POST /api/conversations/{id}/meetups", auth(h.Meetup.Create))
	mux.Handle("GET /api/meetups/{meetupId}", auth(h.Meetup.Get))
	mux.Handle("PATCH /api/meetups/{meetupId}", auth(h.Meetup.UpdateStatus))

	// Presence
	mux.Handle("GET /api/presence/online", auth(h.Presence.Online))

	// WebSocket. Browsers cannot set headers on the upgrade, so the token
	// travels as ?token= and the ws handler validates it itself.
	mux.HandleFunc("GET /ws", wsHandler.HandleConnection)
}
