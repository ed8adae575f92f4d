package handlers

import (
	"net/http"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/services"
)

type MeetupHandler struct {
	meetupService services.MeetupService
}

func NewMeetupHandler(meetupService services.MeetupService) *MeetupHandler {
	return &MeetupHandler{meetupService: meetupService}
}

// Create godoc
// POST /api/conversations/{id}/meetups
func (h *MeetupHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateMeetupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := h.meetupService.Create(r.Context(), user.UserID, r.PathValue("id"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, m)
}

// List godoc
// GET /api/conversations/{id}/meetups
func (h *MeetupHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	meetups, err := h.meetupService.ListByConversation(r.Context(), user.UserID, r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, meetups)
}

// Get godoc
// GET /api/meetups/{meetupId}
func (h *MeetupHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	m, err := h.meetupService.Get(r.Context(), user.UserID, r.PathValue("meetupId"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, m)
}

// UpdateStatus godoc
// PATCH /api/meetups/{meetupId}
// Body: { "status": "confirmed|cancelled" }
func (h *MeetupHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.UpdateMeetupStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := h.meetupService.UpdateStatus(r.Context(), user.UserID, r.PathValue("meetupId"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, m)
}
