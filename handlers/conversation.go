package handlers

import (
	"net/http"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/services"
)

type ConversationHandler struct {
	conversationService services.ConversationService
}

func NewConversationHandler(conversationService services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// Create godoc
// POST /api/conversations
// Opens the caller's conversation with user_id (per listing), or returns
// the existing one. 201 when created, 200 otherwise.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	conv, created, err := h.conversationService.GetOrCreate(r.Context(), user.UserID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	pkg.JSON(w, status, conv)
}

// List godoc
// GET /api/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	convs, err := h.conversationService.List(r.Context(), user.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, convs)
}

// Get godoc
// GET /api/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	conv, err := h.conversationService.Get(r.Context(), user.UserID, r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, conv)
}

// Rename godoc
// PATCH /api/conversations/{id}
// Body: { "title": "..." } (trimmed, 1-100 characters)
func (h *ConversationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.RenameConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	conv, err := h.conversationService.Rename(r.Context(), user.UserID, r.PathValue("id"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, conv)
}
