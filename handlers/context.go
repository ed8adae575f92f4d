// Package handlers holds the thin HTTP layer: decode the request, call a
// service, write the pkg.JSON / pkg.Error envelope.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
)

// contextKey keeps request context keys out of other packages' namespace.
type contextKey string

// UserContextKey carries the caller's *models.TokenClaims, set by
// middleware.AuthMiddleware.
const UserContextKey contextKey = "user"

// currentUser returns the authenticated caller, writing a 401 when the
// route was mounted without the auth middleware.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.TokenClaims, bool) {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok || claims == nil {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return nil, false
	}
	return claims, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
