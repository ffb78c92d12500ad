package waitlist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safespora/safespora-admin/internal/audit"
	"github.com/safespora/safespora-admin/internal/mail"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
	"github.com/safespora/safespora-admin/internal/view"
	_ "github.com/safespora/safespora-admin/testing"
)

type stubRepo struct {
	entries map[string]*Entry
	invited []string
}

func newStubRepo() *stubRepo { return &stubRepo{entries: map[string]*Entry{}} }

func (s *stubRepo) Insert(_ context.Context, e *Entry) error {
	if _, ok := s.entries[e.Email]; ok {
		return ErrAlreadyJoined
	}
	e.ID = uuid.New()
	e.Position = len(s.entries) + 1
	s.entries[e.Email] = e
	return nil
}

func (s *stubRepo) List(context.Context, ListFilter) ([]Entry, int, error) {
	var out []Entry
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (s *stubRepo) Stats(context.Context) (Stats, error) {
	return Stats{Total: len(s.entries), Invited: len(s.invited)}, nil
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*Entry, error) {
	e, ok := s.entries[email]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return e, nil
}

func (s *stubRepo) MarkInvited(_ context.Context, email string, at time.Time) error {
	s.invited = append(s.invited, email)
	s.entries[email].Invited = true
	s.entries[email].InvitedAt = &at
	return nil
}

type captureMailer struct {
	sent []mail.Message
	fail map[string]bool
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	if m.fail[msg.To] {
		return errors.New("smtp: mailbox unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type stubAudit struct{ entries []audit.Entry }

func (s *stubAudit) Record(_ context.Context, e audit.Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

type fixture struct {
	svc    *Service
	repo   *stubRepo
	mailer *captureMailer
	audit  *stubAudit
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	templates, err := mail.NewTemplates("https://admin.safespora.org")
	require.NoError(t, err)
	repo, mailer, rec := newStubRepo(), &captureMailer{fail: map[string]bool{}}, &stubAudit{}
	svc := NewService(Config{
		Repo: repo, Audit: rec, Mailer: mailer, Templates: templates,
		DefaultDownloadLink: "https://safespora.org/download",
	})
	return fixture{svc: svc, repo: repo, mailer: mailer, audit: rec}
}

func TestJoinAssignsPositionAndSendsConfirmation(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Join(context.Background(), JoinRequest{Name: "Chioma Obi", Email: " Chioma@Example.com ", City: "Enugu"})
	require.NoError(t, err)
	assert.Equal(t, "chioma@example.com", first.Email)
	assert.Equal(t, 1, first.Position)
	require.NotNil(t, first.City)

	second, err := f.svc.Join(context.Background(), JoinRequest{Name: "Musa Bello", Email: "musa@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Position)
	assert.Nil(t, second.City)

	require.Len(t, f.mailer.sent, 2)
	assert.Equal(t, mail.TemplateWaitlistWelcome, f.mailer.sent[0].Template)
	assert.Equal(t, "chioma@example.com", f.mailer.sent[0].To)
}

func TestJoinDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Join(context.Background(), JoinRequest{Name: "Chioma Obi", Email: "chioma@example.com"})
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), JoinRequest{Name: "Chioma Obi", Email: "CHIOMA@example.com"})
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestJoinSurvivesMailFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.fail["ngozi@example.com"] = true
	entry, err := f.svc.Join(context.Background(), JoinRequest{Name: "Ngozi", Email: "ngozi@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Position)
}

func TestJoinRejectsSpam(t *testing.T) {
	f := newFixture(t)
	cases := map[string]JoinRequest{
		"short name":        {Name: "A", Email: "a@example.com"},
		"digits in name":    {Name: "R2D2", Email: "r@example.com"},
		"spam keyword":      {Name: "Qwerty Smith", Email: "q@example.com"},
		"disposable domain": {Name: "Ada Eze", Email: "ada@mailinator.com"},
		"test local part":   {Name: "Ada Eze", Email: "mytest@example.com"},
		"noreply":           {Name: "Ada Eze", Email: "no-reply@example.com"},
		"double dots":       {Name: "Ada Eze", Email: "ada..eze@example.com"},
		"bad email":         {Name: "Ada Eze", Email: "ada-at-example.com"},
		"bad city":          {Name: "Ada Eze", Email: "ada@example.com", City: "Lagos<script>"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Join(context.Background(), req)
			assert.ErrorIs(t, err, httpx.ErrValidation)
		})
	}
	assert.Empty(t, f.repo.entries)
}

func TestCheckEmailAcceptsOrdinaryAddress(t *testing.T) {
	assert.NoError(t, CheckEmail("folake.adeyemi@gmail.com"))
	assert.NoError(t, CheckName("Folake O'Neil-Adeyemi"))
}

func TestNotifyCollectsFailures(t *testing.T) {
	f := newFixture(t)
	for _, e := range []string{"a@example.com", "b@example.com"} {
		_, err := f.svc.Join(context.Background(), JoinRequest{Name: "Ada Eze", Email: e})
		require.NoError(t, err)
	}
	f.mailer.sent = nil
	f.mailer.fail["b@example.com"] = true

	actor := &rbac.Principal{ID: uuid.New(), Role: rbac.RoleStandard, IsActive: true, Permissions: rbac.NewGrid(rbac.SettingsEdit)}
	result, err := f.svc.Notify(context.Background(), actor, NotifyRequest{Emails: []string{"A@example.com", "b@example.com", "c@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 2)
	assert.True(t, strings.HasPrefix(result.Errors[0], "b@example.com: "))
	assert.Equal(t, "c@example.com: not on the waitlist", result.Errors[1])

	assert.Equal(t, []string{"a@example.com"}, f.repo.invited)
	require.Len(t, f.mailer.sent, 1)
	assert.Contains(t, f.mailer.sent[0].HTML, "https://safespora.org/download")

	require.Len(t, f.audit.entries, 1)
	e := f.audit.entries[0]
	assert.Equal(t, ActionNotify, e.Action)
	assert.Equal(t, TargetWaitlist, e.TargetType)
	assert.Equal(t, "bulk", e.TargetID)
	assert.Equal(t, 1, e.Details["success"])
	assert.Equal(t, 2, e.Details["failed"])
}

func TestNotifyRequiresSettingsEdit(t *testing.T) {
	f := newFixture(t)
	viewer := &rbac.Principal{ID: uuid.New(), Role: rbac.RoleStandard, IsActive: true, Permissions: rbac.NewGrid(rbac.SettingsView)}
	_, err := f.svc.Notify(context.Background(), viewer, NotifyRequest{Emails: []string{"a@example.com"}})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
	assert.Empty(t, f.audit.entries)
}

type joinCounter struct{ outcomes []string }

func (c *joinCounter) WaitlistJoin(outcome string) { c.outcomes = append(c.outcomes, outcome) }

func TestJoinEndpoint(t *testing.T) {
	f := newFixture(t)
	counter := &joinCounter{}
	h := NewHandler(nil, f.svc, nil, nil, rbac.Guard{}, 3, time.Hour).WithMetrics(counter)
	r := chi.NewRouter()
	h.MountPublic(r)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/join", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := post(`{"name":"Ada Eze","email":"ada@example.com","city":"Lagos"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"position":1`)

	rr = post(`{"name":"Ada Eze","email":"ada@example.com"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.JSONEq(t, `{"error":"This email is already on the waitlist"}`, rr.Body.String())

	rr = post(`{"name":"Ada Eze","email":"ada@mailinator.com"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"Temporary or disposable email addresses are not allowed"}`, rr.Body.String())

	rr = post(`{"name":"Bola Ade","email":"bola@example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, []string{"joined", "duplicate", "invalid", "rate_limited"}, counter.outcomes)
}

func TestNotifyEndpointValidation(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(nil, f.svc, nil, nil, rbac.Guard{}, 0, 0)
	actor := &rbac.Principal{ID: uuid.New(), Role: rbac.RoleSuper, IsActive: true}

	call := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), actor))
		rr := httptest.NewRecorder()
		h.notify(rr, req)
		return rr
	}
	assert.Equal(t, http.StatusBadRequest, call(`{"emails":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(`{"emails":["nope"]}`).Code)

	rr := call(`{"emails":["x@example.com"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"failed":1`)
}

func TestWaitlistPageRenders(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Join(context.Background(), JoinRequest{Name: "Chioma Obi", Email: "chioma@example.com", City: "Enugu"})
	require.NoError(t, err)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, f.svc, templates, nil, rbac.Guard{}, 0, 0)

	req := httptest.NewRequest(http.MethodGet, "/admin/waitlist", nil)
	p := &rbac.Principal{ID: uuid.New(), Role: rbac.RoleStandard, IsActive: true, Permissions: rbac.NewGrid(rbac.SettingsView)}
	ctx := rbac.ContextWithPrincipal(req.Context(), p)
	ctx = shared.ContextWithSession(ctx, &shared.Session{})
	rr := httptest.NewRecorder()
	h.listEntries(rr, req.WithContext(ctx))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "chioma@example.com")
	assert.NotContains(t, rr.Body.String(), "data-notify")
}

func TestRepositoryInsertLocksAndCounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	at := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`SET LOCAL lock_timeout = '3000ms'`).WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec(`LOCK TABLE waitlist`).WillReturnResult(pgxmock.NewResult("LOCK TABLE", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM waitlist`).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(41))
	mock.ExpectQuery(`INSERT INTO waitlist \(name,email,city,position,created_at\) VALUES \(\$1,\$2,\$3,\$4,\$5\) RETURNING id`).
		WithArgs("Ada Eze", "ada@example.com", pgxmock.AnyArg(), 42, at).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))
	mock.ExpectCommit()

	e := &Entry{Name: "Ada Eze", Email: "ada@example.com", CreatedAt: at}
	require.NoError(t, NewRepository(mock).Insert(context.Background(), e))
	assert.Equal(t, 42, e.Position)
	assert.Equal(t, id, e.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryInsertMapsUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`SET LOCAL lock_timeout = '3000ms'`).WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec(`LOCK TABLE waitlist`).WillReturnResult(pgxmock.NewResult("LOCK TABLE", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM waitlist`).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO waitlist`).
		WithArgs("Ada", "ada@example.com", pgxmock.AnyArg(), 2, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err = NewRepository(mock).Insert(context.Background(), &Entry{Name: "Ada", Email: "ada@example.com"})
	assert.ErrorIs(t, err, ErrAlreadyJoined)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryInsertReportsBusyOnLockTimeout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec(`LOCK TABLE waitlist`).WillReturnError(&pgconn.PgError{Code: "55P03"})
	mock.ExpectRollback()

	err = NewRepository(mock).Insert(context.Background(), &Entry{Name: "Ada", Email: "ada@example.com"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, http.StatusServiceUnavailable, httpx.StatusFor(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
