// Package pkg holds utilities shared across the backend layers.
// This file defines the domain-level sentinel errors.
//
// Errors are compared by identity, never by string:
//
//	if errors.Is(err, pkg.ErrNotFound) { ... }
//
// Services wrap these with context ("%w: conversation not found") and the
// handler layer maps them to HTTP status codes.
package pkg

import "errors"

// Domain-level errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrInternal      = errors.New("internal error")

	// ErrInvalidTransition is returned when a negotiation status change is
	// not allowed from the current status or by the requesting participant.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrRateLimited is returned when a per-user limiter rejects a write.
	ErrRateLimited = errors.New("rate limited")
)
