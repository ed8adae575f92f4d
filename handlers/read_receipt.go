package handlers

import (
	"net/http"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/services"
)

type ReadReceiptHandler struct {
	readReceiptService services.ReadReceiptService
}

func NewReadReceiptHandler(readReceiptService services.ReadReceiptService) *ReadReceiptHandler {
	return &ReadReceiptHandler{readReceiptService: readReceiptService}
}

// MarkRead godoc
// POST /api/conversations/{id}/read
// Body: { "message_id": "..." }. Older ids are accepted and ignored; the
// response is the pointer after the call.
func (h *ReadReceiptHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.MarkReadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rr, err := h.readReceiptService.MarkRead(r.Context(), user.UserID, r.PathValue("id"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, rr)
}

// Get godoc
// GET /api/conversations/{id}/read-receipts/{userId}
func (h *ReadReceiptHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	rr, err := h.readReceiptService.Get(r.Context(), user.UserID, r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, rr)
}
