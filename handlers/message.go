package handlers

import (
	"net/http"
	"strconv"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/services"
)

type MessageHandler struct {
	messageService services.MessageService
}

func NewMessageHandler(messageService services.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// List godoc
// GET /api/conversations/{id}/messages?before=&limit=
// Cursor paging backwards from the newest message; each page is oldest
// first.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	beforeID := r.URL.Query().Get("before")
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page, err := h.messageService.List(r.Context(), user.UserID, r.PathValue("id"), beforeID, limit)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, page)
}

// Send godoc
// POST /api/conversations/{id}/messages
// Body: { "type": "text|card_offer|image", "body": "...", "payload": {...} }
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.messageService.Send(r.Context(), user.UserID, r.PathValue("id"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, msg)
}
