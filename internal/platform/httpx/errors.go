// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("too many requests")
	ErrUnavailable  = errors.New("temporarily unavailable")
)

type errorMapping struct {
	err    error
	status int
	title  string
}

// Checked in order; the first sentinel found in the chain wins.
var errorMappings = []errorMapping{
	{ErrNotFound, http.StatusNotFound, "Not Found"},
	{ErrDuplicate, http.StatusConflict, "Duplicate"},
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{ErrForbidden, http.StatusForbidden, "Forbidden"},
	{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrRateLimited, http.StatusTooManyRequests, "Too Many Requests"},
	{ErrUnavailable, http.StatusServiceUnavailable, "Service Unavailable"},
}

// StatusFor returns the HTTP status RespondError would send for err.
func StatusFor(err error) int {
	if m, ok := lookup(err); ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// RespondError writes err as problem+json. Mapped errors carry their message
// as detail; anything else is reported without detail.
func RespondError(w http.ResponseWriter, err error) {
	if m, ok := lookup(err); ok {
		Problem(w, m.status, m.title, err.Error())
		return
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func lookup(err error) (errorMapping, bool) {
	if err == nil {
		return errorMapping{}, false
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	return errorMapping{}, false
}
