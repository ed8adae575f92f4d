package pkg

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingMarshaler struct{}

func (failingMarshaler) MarshalJSON() ([]byte, error) {
	return nil, fmt.Errorf("unknown message type %q", "")
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestJSONWritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"id": "c1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]any{"id": "c1"}, resp.Data)
}

func TestJSONEncodingFailureBecomes500(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, []any{failingMarshaler{}})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "internal", resp.Code)
}

func TestErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: conversation", ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: no offer yet", ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{fmt.Errorf("%w: try again in 15s", ErrRateLimited), http.StatusTooManyRequests, "rate_limited"},
		{fmt.Errorf("disk full"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		Error(rec, tc.err)

		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		resp := decodeEnvelope(t, rec)
		assert.Equal(t, tc.code, resp.Code)
	}
}
