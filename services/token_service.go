package services

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
)

const tokenIssuer = "tradechat"

// TokenService issues and validates HS256 access tokens. The same token
// authenticates HTTP requests and the WebSocket upgrade.
type TokenService interface {
	IssueAccessToken(userID, username string) (string, error)
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

type tokenService struct {
	secret []byte
	expiry time.Duration
	clk    clock.Clock
}

func NewTokenService(secret string, expiry time.Duration, clk clock.Clock) TokenService {
	if clk == nil {
		clk = clock.New()
	}
	return &tokenService{secret: []byte(secret), expiry: expiry, clk: clk}
}

func (s *tokenService) IssueAccessToken(userID, username string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", pkg.ErrBadRequest)
	}
	now := s.clk.Now()
	claims := &models.TokenClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (s *tokenService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clk.Now), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: invalid token claims", pkg.ErrUnauthorized)
	}
	return claims, nil
}
