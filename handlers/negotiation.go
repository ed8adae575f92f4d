package handlers

import (
	"net/http"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/services"
)

type NegotiationHandler struct {
	negotiationService services.NegotiationService
}

func NewNegotiationHandler(negotiationService services.NegotiationService) *NegotiationHandler {
	return &NegotiationHandler{negotiationService: negotiationService}
}

// Get godoc
// GET /api/conversations/{id}/negotiation
// data is omitted before the first offer.
func (h *NegotiationHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	st, err := h.negotiationService.Get(r.Context(), user.UserID, r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	if st == nil {
		pkg.JSON(w, http.StatusOK, nil)
		return
	}

	pkg.JSON(w, http.StatusOK, st)
}

// Update godoc
// PATCH /api/conversations/{id}/negotiation
// Body: { "status": "countered|accepted|declined|completed" }. Disallowed
// transitions answer 409.
func (h *NegotiationHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.UpdateNegotiationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	st, err := h.negotiationService.Update(r.Context(), user.UserID, r.PathValue("id"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, st)
}
