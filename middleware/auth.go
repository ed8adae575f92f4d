// Package middleware holds the HTTP middleware chain.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/akinalp/tradechat/handlers"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/services"
)

// AuthMiddleware validates the bearer access token.
type AuthMiddleware struct {
	tokenService services.TokenService
}

func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokenService: tokenService}
}

// Require rejects requests without a valid "Authorization: Bearer <token>"
// header and puts the token claims into the request context.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <token>")
			return
		}

		claims, err := m.tokenService.ValidateAccessToken(tokenString)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), handlers.UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
