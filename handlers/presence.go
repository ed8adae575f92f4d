package handlers

import (
	"net/http"

	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/ws"
)

type PresenceHandler struct {
	hub ws.EventPublisher
}

func NewPresenceHandler(hub ws.EventPublisher) *PresenceHandler {
	return &PresenceHandler{hub: hub}
}

// Online godoc
// GET /api/presence/online
// Users connected to this instance. Clients follow presence:global instead;
// this is for diagnostics.
func (h *PresenceHandler) Online(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	pkg.JSON(w, http.StatusOK, h.hub.GetOnlineUserIDs())
}
