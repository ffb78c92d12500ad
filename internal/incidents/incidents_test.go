package incidents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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
	items   map[uuid.UUID]*Incident
	deleted []uuid.UUID
}

func (s *stubRepo) List(_ context.Context, filter ListFilter) ([]Incident, int, error) {
	var out []Incident
	for _, inc := range s.items {
		if filter.Status != "" && inc.Status != filter.Status {
			continue
		}
		out = append(out, *inc)
	}
	return out, len(out), nil
}

func (s *stubRepo) Get(_ context.Context, id uuid.UUID) (*Incident, error) {
	inc, ok := s.items[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return inc, nil
}

func (s *stubRepo) Counts(context.Context) (Counts, error) {
	return Counts{Total: len(s.items)}, nil
}

func (s *stubRepo) SetStatus(_ context.Context, id uuid.UUID, status string, by uuid.UUID, at time.Time) error {
	inc, ok := s.items[id]
	if !ok {
		return httpx.ErrNotFound
	}
	inc.Status = status
	inc.ResolvedAt = &at
	inc.ResolvedBy = uuid.NullUUID{UUID: by, Valid: true}
	return nil
}

func (s *stubRepo) SetNote(_ context.Context, id uuid.UUID, note *string, _ time.Time) error {
	inc, ok := s.items[id]
	if !ok {
		return httpx.ErrNotFound
	}
	inc.AdminNotes = note
	return nil
}

func (s *stubRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.items[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(s.items, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type stubAudit struct{ entries []audit.Entry }

func (s *stubAudit) Record(_ context.Context, e audit.Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

type stubInvalidator struct {
	calls int
	err   error
}

func (s *stubInvalidator) Invalidate(context.Context) error {
	s.calls++
	return s.err
}

type fixture struct {
	svc   *Service
	repo  *stubRepo
	audit *stubAudit
	cache *stubInvalidator
	id    uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	id := uuid.New()
	repo := &stubRepo{items: map[uuid.UUID]*Incident{id: {
		ID: id, Title: "Flooding on Bode Thomas", Category: "flood", Severity: "high",
		Status: StatusActive, Location: "Surulere", CreatedAt: time.Now(),
	}}}
	rec, cache := &stubAudit{}, &stubInvalidator{}
	return fixture{svc: NewService(repo, rec, cache, nil), repo: repo, audit: rec, cache: cache, id: id}
}

func moderator(caps ...rbac.Capability) *rbac.Principal {
	return &rbac.Principal{ID: uuid.New(), Role: rbac.RoleStandard, IsActive: true, Permissions: rbac.NewGrid(caps...)}
}

func TestResolveAndFalseReport(t *testing.T) {
	f := newFixture(t)
	actor := moderator(rbac.IncidentsView, rbac.IncidentsEdit)

	require.NoError(t, f.svc.Resolve(context.Background(), actor, f.id))
	assert.Equal(t, StatusResolved, f.repo.items[f.id].Status)
	assert.Equal(t, actor.ID, f.repo.items[f.id].ResolvedBy.UUID)

	require.NoError(t, f.svc.MarkFalseReport(context.Background(), actor, f.id))
	assert.Equal(t, StatusFalseReport, f.repo.items[f.id].Status)

	require.Len(t, f.audit.entries, 2)
	assert.Equal(t, ActionResolve, f.audit.entries[0].Action)
	assert.Equal(t, TargetIncident, f.audit.entries[0].TargetType)
	assert.Equal(t, f.id.String(), f.audit.entries[0].TargetID)
	assert.Equal(t, ActionFalseReport, f.audit.entries[1].Action)
	assert.Equal(t, 2, f.cache.calls)
}

func TestModerationRequiresEdit(t *testing.T) {
	f := newFixture(t)
	viewer := moderator(rbac.IncidentsView)

	assert.ErrorIs(t, f.svc.Resolve(context.Background(), viewer, f.id), httpx.ErrForbidden)
	assert.ErrorIs(t, f.svc.AddNote(context.Background(), viewer, f.id, "x"), httpx.ErrForbidden)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), moderator(rbac.IncidentsEdit), f.id), httpx.ErrForbidden)
	assert.ErrorIs(t, f.svc.Resolve(context.Background(), moderator(rbac.IncidentsEdit), uuid.New()), httpx.ErrNotFound)
	assert.Empty(t, f.audit.entries)
	assert.Zero(t, f.cache.calls)
}

func TestAddNoteTrimsAndClears(t *testing.T) {
	f := newFixture(t)
	actor := moderator(rbac.IncidentsEdit)

	require.NoError(t, f.svc.AddNote(context.Background(), actor, f.id, "  police notified  "))
	require.NotNil(t, f.repo.items[f.id].AdminNotes)
	assert.Equal(t, "police notified", *f.repo.items[f.id].AdminNotes)

	require.NoError(t, f.svc.AddNote(context.Background(), actor, f.id, "   "))
	assert.Nil(t, f.repo.items[f.id].AdminNotes)

	require.Len(t, f.audit.entries, 2)
	assert.Equal(t, 15, f.audit.entries[0].Details["note_length"])
	assert.Equal(t, 0, f.audit.entries[1].Details["note_length"])
	assert.Zero(t, f.cache.calls)
}

func TestDeleteInvalidatesEvenWhenCacheFails(t *testing.T) {
	f := newFixture(t)
	f.cache.err = errors.New("redis down")

	require.NoError(t, f.svc.Delete(context.Background(), moderator(rbac.IncidentsDelete), f.id))
	assert.Equal(t, []uuid.UUID{f.id}, f.repo.deleted)
	assert.Equal(t, 1, f.cache.calls)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, ActionDelete, f.audit.entries[0].Action)
}

func TestPendingListsActiveOnly(t *testing.T) {
	f := newFixture(t)
	closed := uuid.New()
	f.repo.items[closed] = &Incident{ID: closed, Status: StatusResolved}

	items, err := f.svc.Pending(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, f.id, items[0].ID)
}

func TestRepositoryDeleteRunsInTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`DELETE FROM alert_confirmations WHERE alert_id = \$1`).
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM alerts WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, NewRepository(mock).Delete(context.Background(), id))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDeleteMissingRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`DELETE FROM alert_confirmations`).WithArgs(id.String()).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM alerts`).WithArgs(id.String()).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err = NewRepository(mock).Delete(context.Background(), id)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySetStatusSQL(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id, by := uuid.New(), uuid.New()
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE alerts SET status = \$1, resolved_at = \$2, resolved_by = \$3, updated_at = \$4 WHERE id = \$5`).
		WithArgs(StatusResolved, at, by, at, id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewRepository(mock).SetStatus(context.Background(), id, StatusResolved, by, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts a WHERE \(a.status = \$1 AND a.severity = \$2\)`).
		WithArgs(StatusActive, "critical").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	id := uuid.New()
	mock.ExpectQuery(`SELECT a.id, .* FROM alerts a LEFT JOIN profiles p ON p.id = a.reporter_id WHERE .* ORDER BY a.created_at DESC LIMIT 20 OFFSET 0`).
		WithArgs(StatusActive, "critical").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "title", "description", "category", "severity", "status", "location",
			"admin_notes", "reporter_name", "confirmations", "resolved_at", "resolved_by", "created_at",
		}).AddRow(id, "Gunshots", "", "crime", "critical", StatusActive, "Yaba", nil, "Ada", 4, nil, uuid.NullUUID{}, time.Now()))

	items, total, err := NewRepository(mock).List(context.Background(), ListFilter{Status: StatusActive, Severity: "critical"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Confirmations)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointsValidateAndRespond(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(nil, f.svc, nil, nil, rbac.Guard{})
	actor := moderator(rbac.IncidentsEdit)

	call := func(fn http.HandlerFunc, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), actor))
		rr := httptest.NewRecorder()
		fn(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusBadRequest, call(h.resolve, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(h.resolve, `{"incidentId":"42"}`).Code)
	assert.Equal(t, http.StatusNotFound, call(h.resolve, `{"incidentId":"`+uuid.NewString()+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(h.addNote, `{"incidentId":"`+f.id.String()+`","note":"`+strings.Repeat("x", 2001)+`"}`).Code)
	assert.Equal(t, http.StatusForbidden, call(h.delete, `{"incidentId":"`+f.id.String()+`"}`).Code)

	rr := call(h.addNote, `{"incidentId":"`+f.id.String()+`","note":"checked"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())
}

func TestIncidentsPageRenders(t *testing.T) {
	f := newFixture(t)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, f.svc, templates, nil, rbac.Guard{})

	render := func(p *rbac.Principal) string {
		req := httptest.NewRequest(http.MethodGet, "/admin/incidents", nil)
		ctx := rbac.ContextWithPrincipal(req.Context(), p)
		ctx = shared.ContextWithSession(ctx, &shared.Session{})
		rr := httptest.NewRecorder()
		h.listIncidents(rr, req.WithContext(ctx))
		require.Equal(t, http.StatusOK, rr.Code)
		return rr.Body.String()
	}

	body := render(moderator(rbac.IncidentsView))
	assert.Contains(t, body, "Flooding on Bode Thomas")
	assert.NotContains(t, body, "data-resolve")
	assert.NotContains(t, body, "data-delete")

	body = render(moderator(rbac.IncidentsView, rbac.IncidentsEdit, rbac.IncidentsDelete))
	assert.Contains(t, body, "data-resolve")
	assert.Contains(t, body, "data-delete")
}
