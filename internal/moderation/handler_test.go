package moderation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safespora/safespora-admin/internal/incidents"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
	"github.com/safespora/safespora-admin/internal/staff"
	"github.com/safespora/safespora-admin/internal/view"
	_ "github.com/safespora/safespora-admin/testing"
)

type stubIncidents struct {
	items []incidents.Incident
	err   error
	calls int
}

func (s *stubIncidents) Pending(_ context.Context, limit int) ([]incidents.Incident, error) {
	s.calls++
	return s.items, s.err
}

type stubStaff struct {
	byStatus map[string][]staff.Record
}

func (s *stubStaff) ByStatus(_ context.Context, status string, _ int) ([]staff.Record, error) {
	return s.byStatus[status], nil
}

func newHandler(t *testing.T, inc *stubIncidents) *Handler {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	st := &stubStaff{byStatus: map[string][]staff.Record{
		staff.StatusPending: {{ID: uuid.New(), FullName: "Pending Person", Status: staff.StatusPending}},
		staff.StatusFlagged: {{ID: uuid.New(), FullName: "Flagged Person", Status: staff.StatusFlagged}},
	}}
	return NewHandler(nil, inc, st, templates, nil, rbac.Guard{})
}

func principal(caps ...rbac.Capability) *rbac.Principal {
	return &rbac.Principal{ID: uuid.New(), Role: rbac.RoleStandard, IsActive: true, Permissions: rbac.NewGrid(caps...)}
}

func TestLoadSkipsSectionsWithoutPermission(t *testing.T) {
	inc := &stubIncidents{items: []incidents.Incident{{ID: uuid.New(), Title: "Fire at Oshodi"}}}
	h := newHandler(t, inc)

	q, err := h.Load(context.Background(), principal(rbac.ModerationView, rbac.StaffView))
	require.NoError(t, err)
	assert.Empty(t, q.Incidents)
	assert.Zero(t, inc.calls)
	assert.Len(t, q.PendingStaff, 1)
	assert.Len(t, q.FlaggedStaff, 1)

	q, err = h.Load(context.Background(), &rbac.Principal{Role: rbac.RoleSuper, IsActive: true})
	require.NoError(t, err)
	assert.Len(t, q.Incidents, 1)
}

func TestQueuePage(t *testing.T) {
	inc := &stubIncidents{items: []incidents.Incident{{ID: uuid.New(), Title: "Fire at Oshodi", Severity: "critical"}}}
	h := newHandler(t, inc)

	req := httptest.NewRequest(http.MethodGet, "/admin/moderation", nil)
	ctx := rbac.ContextWithPrincipal(req.Context(), principal(rbac.ModerationView, rbac.IncidentsView, rbac.StaffView))
	ctx = shared.ContextWithSession(ctx, &shared.Session{})
	rr := httptest.NewRecorder()
	h.showQueue(rr, req.WithContext(ctx))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Fire at Oshodi")
	assert.Contains(t, body, "Pending Person")
	assert.Contains(t, body, "Flagged Person")
}

func TestQueuePageFailure(t *testing.T) {
	h := newHandler(t, &stubIncidents{err: errors.New("db down")})

	req := httptest.NewRequest(http.MethodGet, "/admin/moderation", nil)
	ctx := rbac.ContextWithPrincipal(req.Context(), principal(rbac.ModerationView, rbac.IncidentsView))
	rr := httptest.NewRecorder()
	h.showQueue(rr, req.WithContext(ctx))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
