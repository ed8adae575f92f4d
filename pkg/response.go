package pkg

import (
	"encoding/json"
	"errors"
	"net/http"
)

// APIResponse is the envelope every API response uses.
// apiclient decodes the same shape on the client side.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// JSON writes a successful response.
func JSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, APIResponse{
		Success: true,
		Data:    data,
	})
}

// Error writes an error response, mapping domain errors to a status code.
func Error(w http.ResponseWriter, err error) {
	writeEnvelope(w, mapErrorToStatus(err), APIResponse{
		Success: false,
		Error:   err.Error(),
		Code:    ErrorCode(err),
	})
}

// ErrorWithMessage writes an error response with an explicit status.
func ErrorWithMessage(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeEnvelope encodes before touching the header. Once WriteHeader has
// run the status can no longer change, so an encoding failure found
// midway would leave the client a 200 with half a body. Encoding first
// turns it into a proper 500 envelope.
func writeEnvelope(w http.ResponseWriter, status int, resp APIResponse) {
	body, err := json.Marshal(resp)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(APIResponse{
			Success: false,
			Error:   "failed to encode response",
			Code:    ErrorCode(ErrInternal),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// mapErrorToStatus maps domain errors to HTTP status codes.
// errors.Is walks the chain, so wrapped errors match too.
func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the stable machine-readable code for a domain error.
// apiclient turns the code back into the matching sentinel.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}

// ErrorFromCode is the inverse of ErrorCode.
func ErrorFromCode(code string) error {
	switch code {
	case "not_found":
		return ErrNotFound
	case "unauthorized":
		return ErrUnauthorized
	case "forbidden":
		return ErrForbidden
	case "already_exists":
		return ErrAlreadyExists
	case "bad_request":
		return ErrBadRequest
	case "invalid_transition":
		return ErrInvalidTransition
	case "rate_limited":
		return ErrRateLimited
	default:
		return ErrInternal
	}
}
