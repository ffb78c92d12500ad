package staff

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
	records   map[uuid.UUID]*Record
	documents []Document
	reviews   []Review
	reports   []Report
}

func (s *stubRepo) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *stubRepo) Documents(context.Context, uuid.UUID) ([]Document, error) { return s.documents, nil }
func (s *stubRepo) Reviews(context.Context, uuid.UUID) ([]Review, error)     { return s.reviews, nil }
func (s *stubRepo) Reports(context.Context, uuid.UUID) ([]Report, error)     { return s.reports, nil }

func (s *stubRepo) List(_ context.Context, filter ListFilter) ([]Record, int, error) {
	var out []Record
	for _, rec := range s.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, *rec)
	}
	return out, len(out), nil
}

func (s *stubRepo) Counts(context.Context) (Counts, error) {
	return Counts{Total: len(s.records)}, nil
}

func (s *stubRepo) Apply(_ context.Context, id uuid.UUID, d Decision, by uuid.UUID, at time.Time) error {
	rec, ok := s.records[id]
	if !ok {
		return httpx.ErrNotFound
	}
	rec.Status = d.Status
	switch d.Status {
	case StatusVerified:
		rec.BackgroundCheckNotes = d.Note
		rec.VerifiedAt = &at
		rec.VerifiedBy = uuid.NullUUID{UUID: by, Valid: true}
	case StatusRejected:
		rec.RejectionReason = d.Note
	case StatusFlagged:
		rec.FlagReason = d.Note
	}
	return nil
}

type stubAudit struct{ entries []audit.Entry }

func (s *stubAudit) Record(_ context.Context, e audit.Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func newService(t *testing.T) (*Service, *stubRepo, *stubAudit, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	repo := &stubRepo{records: map[uuid.UUID]*Record{id: {
		ID: id, FullName: "Tunde Bakare", Email: "tunde@lasema.gov.ng", Organisation: "LASEMA", Status: StatusPending,
	}}}
	rec := &stubAudit{}
	return NewService(repo, rec, nil), repo, rec, id
}

func verifier(caps ...rbac.Capability) *rbac.Principal {
	return &rbac.Principal{ID: uuid.New(), Role: rbac.RoleStandard, IsActive: true, Permissions: rbac.NewGrid(caps...)}
}

func TestVerifyRecordsVerifier(t *testing.T) {
	svc, repo, rec, id := newService(t)
	actor := verifier(rbac.StaffEdit)

	require.NoError(t, svc.Verify(context.Background(), actor, id, "  ID checked  "))
	r := repo.records[id]
	assert.Equal(t, StatusVerified, r.Status)
	require.NotNil(t, r.BackgroundCheckNotes)
	assert.Equal(t, "ID checked", *r.BackgroundCheckNotes)
	assert.Equal(t, actor.ID, r.VerifiedBy.UUID)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, ActionVerify, rec.entries[0].Action)
	assert.Equal(t, TargetStaff, rec.entries[0].TargetType)
	assert.Equal(t, true, rec.entries[0].Details["has_notes"])
}

func TestRejectAndFlagRequireReason(t *testing.T) {
	svc, repo, rec, id := newService(t)
	actor := verifier(rbac.StaffEdit)

	assert.ErrorIs(t, svc.Reject(context.Background(), actor, id, "  "), httpx.ErrValidation)
	assert.ErrorIs(t, svc.Flag(context.Background(), actor, id, ""), httpx.ErrValidation)
	assert.ErrorIs(t, svc.Flag(context.Background(), actor, id, strings.Repeat("x", 1001)), httpx.ErrValidation)
	assert.Empty(t, rec.entries)

	require.NoError(t, svc.Flag(context.Background(), actor, id, "expired certificate"))
	assert.Equal(t, StatusFlagged, repo.records[id].Status)
	require.NoError(t, svc.Reject(context.Background(), actor, id, "not a member"))
	assert.Equal(t, StatusRejected, repo.records[id].Status)
	require.NotNil(t, repo.records[id].RejectionReason)
	assert.Equal(t, "not a member", *repo.records[id].RejectionReason)

	require.Len(t, rec.entries, 2)
	assert.Equal(t, ActionFlag, rec.entries[0].Action)
	assert.Equal(t, "expired certificate", rec.entries[0].Details["reason"])
	assert.Equal(t, ActionReject, rec.entries[1].Action)
}

func TestDecisionsRequireStaffEdit(t *testing.T) {
	svc, _, rec, id := newService(t)

	assert.ErrorIs(t, svc.Verify(context.Background(), verifier(rbac.StaffView), id, ""), httpx.ErrForbidden)
	assert.ErrorIs(t, svc.Verify(context.Background(), verifier(rbac.StaffEdit), uuid.New(), ""), httpx.ErrNotFound)
	assert.Empty(t, rec.entries)
}

func TestRepositoryApplySQL(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id, by := uuid.New(), uuid.New()
	at := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	reason := "duplicate"

	mock.ExpectExec(`UPDATE staff_records SET status = \$1, rejection_reason = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs(StatusRejected, &reason, at, id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, NewRepository(mock).Apply(context.Background(), id, Decision{Status: StatusRejected, Note: &reason}, by, at))

	mock.ExpectExec(`UPDATE staff_records SET status = \$1, background_check_notes = \$2, verified_at = \$3, verified_by = \$4, rejection_reason = \$5, flag_reason = \$6, updated_at = \$7 WHERE id = \$8`).
		WithArgs(StatusVerified, pgxmock.AnyArg(), at, by, nil, nil, at, id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = NewRepository(mock).Apply(context.Background(), id, Decision{Status: StatusVerified}, by, at)
	assert.ErrorIs(t, err, httpx.ErrNotFound)

	err = NewRepository(mock).Apply(context.Background(), id, Decision{Status: "archived"}, by, at)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointsValidate(t *testing.T) {
	svc, _, _, id := newService(t)
	h := NewHandler(nil, svc, nil, nil, rbac.Guard{})
	actor := verifier(rbac.StaffEdit)

	call := func(fn http.HandlerFunc, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), actor))
		rr := httptest.NewRecorder()
		fn(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusBadRequest, call(h.reject, `{"staffId":"`+id.String()+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(h.verify, `{"staffId":"abc"}`).Code)
	assert.Equal(t, http.StatusNotFound, call(h.flag, `{"staffId":"`+uuid.NewString()+`","reason":"x"}`).Code)

	rr := call(h.verify, `{"staffId":"`+id.String()+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())
}

func TestStaffPageRenders(t *testing.T) {
	svc, _, _, _ := newService(t)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, svc, templates, nil, rbac.Guard{})

	req := httptest.NewRequest(http.MethodGet, "/admin/staff?status=pending", nil)
	ctx := rbac.ContextWithPrincipal(req.Context(), verifier(rbac.StaffView, rbac.StaffEdit))
	ctx = shared.ContextWithSession(ctx, &shared.Session{})
	rr := httptest.NewRecorder()
	h.listStaff(rr, req.WithContext(ctx))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Tunde Bakare")
	assert.Contains(t, rr.Body.String(), "data-verify")
}

func TestStaffDetailPageRenders(t *testing.T) {
	svc, repo, _, id := newService(t)
	ada := "Ada Eze"
	repo.documents = []Document{{ID: uuid.New(), DocumentType: "national_id", DocumentURL: "https://files.safespora.org/id.pdf", UploadedAt: time.Now()}}
	repo.reviews = []Review{{ID: uuid.New(), ReviewerName: &ada, Rating: 4, Comment: "Arrived quickly"}, {ID: uuid.New(), Rating: 5}}
	repo.reports = []Report{{ID: uuid.New(), Title: "Rude on call", Severity: "low", Status: "open"}}
	templates, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, svc, templates, nil, rbac.Guard{})

	serve := func(target string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Get("/admin/staff/{id}", h.showStaff)
		req := httptest.NewRequest(http.MethodGet, target, nil)
		ctx := rbac.ContextWithPrincipal(req.Context(), verifier(rbac.StaffView))
		ctx = shared.ContextWithSession(ctx, &shared.Session{})
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req.WithContext(ctx))
		return rr
	}

	rr := serve("/admin/staff/" + id.String())
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Tunde Bakare")
	assert.Contains(t, body, "National Id")
	assert.Contains(t, body, "Ada Eze")
	assert.Contains(t, body, "4.5 / 5 from 2 reviews")
	assert.Contains(t, body, "Rude on call")
	assert.NotContains(t, body, "data-verify", "actions need staff.edit")

	assert.Equal(t, http.StatusNotFound, serve("/admin/staff/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusNotFound, serve("/admin/staff/not-an-id").Code)
}

func TestRepositoryDetailQueries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)
	id := uuid.New()
	at := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, document_type, document_url, uploaded_at FROM staff_documents WHERE staff_id = \$1 ORDER BY uploaded_at DESC`).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "document_type", "document_url", "uploaded_at"}).
			AddRow(uuid.New(), "licence", "https://files.safespora.org/l.pdf", at))
	docs, err := repo.Documents(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "licence", docs[0].DocumentType)

	mock.ExpectQuery(`SELECT v.id, p.full_name AS reviewer_name, .* FROM staff_reviews v LEFT JOIN profiles p ON p.id = v.reviewer_id WHERE v.staff_id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "reviewer_name", "rating", "comment", "created_at"}).
			AddRow(uuid.New(), (*string)(nil), 3, "", at))
	reviews, err := repo.Reviews(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Nil(t, reviews[0].ReviewerName)

	mock.ExpectQuery(`FROM staff_reports s LEFT JOIN profiles p ON p.id = s.reporter_id WHERE s.staff_id = \$1 ORDER BY s.created_at DESC`).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "reporter_name", "title", "description", "severity", "status", "created_at"}))
	reports, err := repo.Reports(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, reports)

	mock.ExpectQuery(`FROM staff_records WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows(recordColumns))
	_, err = repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
