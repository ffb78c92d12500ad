package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("%w: admin", ErrNotFound):           http.StatusNotFound,
		fmt.Errorf("%w: pending invite", ErrDuplicate): http.StatusConflict,
		fmt.Errorf("%w: bad", ErrValidation):           http.StatusBadRequest,
		ErrForbidden:                                   http.StatusForbidden,
		ErrUnauthorized:                                http.StatusUnauthorized,
		ErrRateLimited:                                 http.StatusTooManyRequests,
		fmt.Errorf("%w: lock", ErrUnavailable):         http.StatusServiceUnavailable,
		errors.New("db down"):                          http.StatusInternalServerError,
	}
	for err, status := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, err)
		assert.Equal(t, status, rec.Code, err.Error())
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, StatusFor(fmt.Errorf("wrap: %w", ErrDuplicate)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("other")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(nil))
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("password=secret"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Detail)
	assert.Equal(t, "Internal Error", body.Title)
}

func TestDecodeJSONWrapsValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	var target map[string]any
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.EqualValues(t, 1, target["a"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.ErrorContains(t, DecodeJSON(req, &target), "empty")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1} {"a":2}`))
	require.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)
}

func TestProblemBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, http.StatusForbidden, "Forbidden", "insufficient permissions")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"type":"about:blank","title":"Forbidden","status":403,"detail":"insufficient permissions"}`, rec.Body.String())
}

func TestParseIDRejectsMalformedInput(t *testing.T) {
	id, err := ParseID("6f1c2f0e-8f55-4d8b-9a57-3f0d7f1f2a10", "userId")
	require.NoError(t, err)
	assert.Equal(t, "6f1c2f0e-8f55-4d8b-9a57-3f0d7f1f2a10", id.String())

	_, err = ParseID("not-a-uuid", "userId")
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "userId")

	rec := httptest.NewRecorder()
	RespondError(rec, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
