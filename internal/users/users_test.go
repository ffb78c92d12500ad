package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safespora/safespora-admin/internal/audit"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
	"github.com/safespora/safespora-admin/internal/view"
	_ "github.com/safespora/safespora-admin/testing"
)

type stubRepo struct {
	users         map[uuid.UUID]*User
	reasons       map[uuid.UUID]*string
	reports       []Report
	confirmations []Confirmation
}

func (s *stubRepo) List(_ context.Context, _ ListFilter) ([]User, int, error) {
	var out []User
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (s *stubRepo) Get(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) SetSuspension(_ context.Context, id uuid.UUID, reason *string, _ uuid.UUID, _ time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return httpx.ErrNotFound
	}
	u.IsSuspended = reason != nil
	s.reasons[id] = reason
	return nil
}

func (s *stubRepo) Reports(_ context.Context, _ uuid.UUID, limit int) ([]Report, error) {
	if len(s.reports) > limit {
		return s.reports[:limit], nil
	}
	return s.reports, nil
}

func (s *stubRepo) Confirmations(_ context.Context, _ uuid.UUID, limit int) ([]Confirmation, error) {
	if len(s.confirmations) > limit {
		return s.confirmations[:limit], nil
	}
	return s.confirmations, nil
}

type stubAudit struct{ entries []audit.Entry }

func (s *stubAudit) Record(_ context.Context, e audit.Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func newService(t *testing.T) (*Service, *stubRepo, *stubAudit, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	repo := &stubRepo{
		users:   map[uuid.UUID]*User{id: {ID: id, FullName: "Ada Reporter", Email: "ada@example.com"}},
		reasons: map[uuid.UUID]*string{},
	}
	rec := &stubAudit{}
	return NewService(repo, rec, nil), repo, rec, id
}

func moderator(caps ...rbac.Capability) *rbac.Principal {
	return &rbac.Principal{ID: uuid.New(), Role: rbac.RoleStandard, IsActive: true, Permissions: rbac.NewGrid(caps...)}
}

func TestSuspendAndUnsuspend(t *testing.T) {
	svc, repo, rec, id := newService(t)
	actor := moderator(rbac.UsersView, rbac.UsersEdit)

	require.NoError(t, svc.Suspend(context.Background(), actor, id, "  repeated false reports "))
	assert.True(t, repo.users[id].IsSuspended)
	require.NotNil(t, repo.reasons[id])
	assert.Equal(t, "repeated false reports", *repo.reasons[id])

	require.NoError(t, svc.Unsuspend(context.Background(), actor, id))
	assert.False(t, repo.users[id].IsSuspended)

	require.Len(t, rec.entries, 2)
	assert.Equal(t, ActionSuspend, rec.entries[0].Action)
	assert.Equal(t, "repeated false reports", rec.entries[0].Details["reason"])
	assert.Equal(t, ActionUnsuspend, rec.entries[1].Action)
	assert.Equal(t, actor.ID, rec.entries[1].ActorID)
	assert.Equal(t, TargetUser, rec.entries[1].TargetType)
}

func TestSuspendRules(t *testing.T) {
	svc, _, rec, id := newService(t)

	err := svc.Suspend(context.Background(), moderator(rbac.UsersView), id, "spam")
	assert.ErrorIs(t, err, httpx.ErrForbidden)

	err = svc.Suspend(context.Background(), moderator(rbac.UsersEdit), id, "   ")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	err = svc.Suspend(context.Background(), moderator(rbac.UsersEdit), uuid.New(), "spam")
	assert.ErrorIs(t, err, httpx.ErrNotFound)
	assert.Empty(t, rec.entries)
}

func TestRepositorySuspendSQL(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id, by := uuid.New(), uuid.New()
	at := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)
	reason := "spam"
	mock.ExpectExec(`UPDATE profiles SET is_suspended = \$1, suspension_reason = \$2, suspended_at = \$3, suspended_by = \$4 WHERE id = \$5`).
		WithArgs(true, "spam", at, by, id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, NewRepository(mock).SetSuspension(context.Background(), id, &reason, by, at))

	mock.ExpectExec(`UPDATE profiles SET is_suspended = \$1, suspension_reason = \$2, suspended_at = \$3, suspended_by = \$4 WHERE id = \$5`).
		WithArgs(false, nil, nil, nil, id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = NewRepository(mock).SetSuspension(context.Background(), id, nil, by, at)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListFiltersSuspended(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM profiles p WHERE \(NOT EXISTS .* AND p.is_suspended = \$1\)`).
		WithArgs(true).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	id := uuid.New()
	mock.ExpectQuery(`SELECT p.id, .* FROM profiles p WHERE .* ORDER BY p.created_at DESC LIMIT 20 OFFSET 0`).
		WithArgs(true).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "full_name", "email", "phone", "city", "is_suspended", "suspension_reason", "suspended_at",
			"suspended_by", "last_active_at", "created_at", "total_reports", "total_confirmations",
		}).AddRow(id, "Ada", "ada@example.com", "", "Lagos", true, nil, nil, uuid.NullUUID{}, nil, time.Now(), 3, 1))

	items, total, err := NewRepository(mock).List(context.Background(), ListFilter{Status: FilterSuspended})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].TotalReports)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSuspendEndpointValidation(t *testing.T) {
	svc, _, _, id := newService(t)
	h := NewHandler(nil, svc, nil, nil, rbac.Guard{})
	actor := moderator(rbac.UsersEdit)

	call := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/users/suspend", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), actor))
		rr := httptest.NewRecorder()
		h.suspend(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusBadRequest, call(`{"userId":"`+id.String()+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(`{"userId":"nope","reason":"spam"}`).Code)
	assert.Equal(t, http.StatusNotFound, call(`{"userId":"`+uuid.NewString()+`","reason":"spam"}`).Code)

	rr := call(`{"userId":"` + id.String() + `","reason":"spam"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())
}

func TestUsersPageRenders(t *testing.T) {
	svc, _, _, _ := newService(t)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, svc, templates, nil, rbac.Guard{})

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	ctx := rbac.ContextWithPrincipal(req.Context(), moderator(rbac.UsersView))
	ctx = shared.ContextWithSession(ctx, &shared.Session{})
	rr := httptest.NewRecorder()
	h.listUsers(rr, req.WithContext(ctx))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ada@example.com")
	assert.NotContains(t, rr.Body.String(), "data-suspend")
}

func TestUserDetailPageRenders(t *testing.T) {
	svc, repo, _, id := newService(t)
	title := "Flooded underpass"
	for i := 0; i < 12; i++ {
		repo.reports = append(repo.reports, Report{ID: uuid.New(), Title: "Road blocked", Category: "traffic", Severity: "high", Status: "false_report", CreatedAt: time.Now()})
	}
	repo.confirmations = []Confirmation{
		{ID: uuid.New(), AlertID: uuid.New(), AlertTitle: &title, CreatedAt: time.Now()},
		{ID: uuid.New(), AlertID: uuid.New(), CreatedAt: time.Now()},
	}
	templates, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, svc, templates, nil, rbac.Guard{})

	serve := func(target string, p *rbac.Principal) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Get("/admin/users/{id}", h.showUser)
		req := httptest.NewRequest(http.MethodGet, target, nil)
		ctx := rbac.ContextWithPrincipal(req.Context(), p)
		ctx = shared.ContextWithSession(ctx, &shared.Session{})
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req.WithContext(ctx))
		return rr
	}

	rr := serve("/admin/users/"+id.String(), moderator(rbac.UsersView, rbac.UsersEdit))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Ada Reporter")
	assert.Equal(t, detailLimit, strings.Count(body, "Road blocked"))
	assert.Contains(t, body, "False Report")
	assert.Contains(t, body, "Flooded underpass")
	assert.Contains(t, body, "Deleted incident")
	assert.Contains(t, body, `data-suspend="`+id.String()+`"`)

	rr = serve("/admin/users/"+id.String(), moderator(rbac.UsersView))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "data-suspend")

	assert.Equal(t, http.StatusNotFound, serve("/admin/users/"+uuid.NewString(), moderator(rbac.UsersView)).Code)
	assert.Equal(t, http.StatusNotFound, serve("/admin/users/nope", moderator(rbac.UsersView)).Code)
}

func TestRepositoryActivityQueries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT id, title, category, severity, location, status, created_at FROM alerts WHERE reporter_id = \$1 ORDER BY created_at DESC LIMIT 10`).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "category", "severity", "location", "status", "created_at"}).
			AddRow(uuid.New(), "Road blocked", "traffic", "high", "Ikeja", "active", now))
	reports, err := repo.Reports(context.Background(), id, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "Ikeja", reports[0].Location)

	mock.ExpectQuery(`SELECT c.id, c.alert_id, a.title AS alert_title, a.location AS alert_location, c.created_at FROM alert_confirmations c LEFT JOIN alerts a ON a.id = c.alert_id WHERE c.user_id = \$1 ORDER BY c.created_at DESC LIMIT 10`).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "alert_id", "alert_title", "alert_location", "created_at"}).
			AddRow(uuid.New(), uuid.New(), (*string)(nil), (*string)(nil), now))
	confirmations, err := repo.Confirmations(context.Background(), id, 10)
	require.NoError(t, err)
	require.Len(t, confirmations, 1)
	assert.Nil(t, confirmations[0].AlertTitle)
	require.NoError(t, mock.ExpectationsWereMet())
}
