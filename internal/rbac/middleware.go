package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/shared"
)

const (
	// LoginRecordedKey marks a session whose login time has been stored.
	LoginRecordedKey = "login_recorded"

	defaultLoginPath   = "/auth/login"
	defaultLandingPath = "/admin/dashboard"
	defaultResetPath   = "/auth/reset-password"
)

// Denial kinds reported to the DenialRecorder.
const (
	DenialUnauthenticated = "unauthenticated"
	DenialResetRequired   = "reset_required"
	DenialForbidden       = "forbidden"
)

// ErrNoPrincipal is returned by Resolve when the request does not map to an
// active administrator. Missing sessions, unknown emails and deactivated
// accounts are indistinguishable.
var ErrNoPrincipal = errors.New("rbac: no active principal")

// PrincipalSource loads principals for the guard. ActivePrincipal must return
// httpx.ErrNotFound for unknown and inactive emails alike.
type PrincipalSource interface {
	ActivePrincipal(ctx context.Context, email string) (*Principal, error)
	RecordLogin(ctx context.Context, id uuid.UUID) error
}

// DenialRecorder counts guard denials.
type DenialRecorder interface {
	GuardDenied(kind string)
}

// Guard resolves the principal behind a request and enforces capabilities.
// Page variants redirect, API variants answer with problem+json.
type Guard struct {
	Source  PrincipalSource
	Logger  *slog.Logger
	Metrics DenialRecorder

	LoginPath   string
	LandingPath string
	ResetPath   string
}

type decision int

const (
	allow decision = iota
	denyUnauthenticated
	denyResetRequired
	denyForbidden
)

type check func(*Principal) bool

// RequirePage guards a page behind capability c.
func (g Guard) RequirePage(c Capability) func(http.Handler) http.Handler {
	return g.page(func(p *Principal) bool { return p.Can(c) }, false)
}

// RequireAnyPage guards a page behind any of the given capabilities.
func (g Guard) RequireAnyPage(caps ...Capability) func(http.Handler) http.Handler {
	return g.page(anyOf(caps), false)
}

// RequireAdminPage only requires an active administrator.
func (g Guard) RequireAdminPage() func(http.Handler) http.Handler {
	return g.page(func(*Principal) bool { return true }, false)
}

// RequireSuperPage requires the super role.
func (g Guard) RequireSuperPage() func(http.Handler) http.Handler {
	return g.page(func(p *Principal) bool { return p.IsSuper() }, false)
}

// AllowPasswordResetPage admits any active administrator, including one that
// must still change the password. Used by the forced reset page only.
func (g Guard) AllowPasswordResetPage() func(http.Handler) http.Handler {
	return g.page(func(*Principal) bool { return true }, true)
}

// RequireAPI guards an API endpoint behind capability c.
func (g Guard) RequireAPI(c Capability) func(http.Handler) http.Handler {
	return g.api(func(p *Principal) bool { return p.Can(c) }, false)
}

// RequireAnyAPI guards an API endpoint behind any of the given capabilities.
func (g Guard) RequireAnyAPI(caps ...Capability) func(http.Handler) http.Handler {
	return g.api(anyOf(caps), false)
}

// RequireAdminAPI only requires an active administrator.
func (g Guard) RequireAdminAPI() func(http.Handler) http.Handler {
	return g.api(func(*Principal) bool { return true }, false)
}

// RequireSuperAPI requires the super role, ignoring the permission grid.
func (g Guard) RequireSuperAPI() func(http.Handler) http.Handler {
	return g.api(func(p *Principal) bool { return p.IsSuper() }, false)
}

// AllowPasswordReset admits administrators that still have to change their
// password. Used by the change-password endpoint only.
func (g Guard) AllowPasswordReset() func(http.Handler) http.Handler {
	return g.api(func(*Principal) bool { return true }, true)
}

// Resolve returns the active principal behind the request session.
func (g Guard) Resolve(ctx context.Context) (*Principal, error) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil || sess.Email() == "" {
		return nil, ErrNoPrincipal
	}
	p, err := g.Source.ActivePrincipal(ctx, sess.Email())
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, ErrNoPrincipal
		}
		return nil, err
	}
	if p == nil || !p.IsActive {
		return nil, ErrNoPrincipal
	}
	return p, nil
}

func (g Guard) page(allowed check, resetAllowed bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, d, err := g.decide(r, allowed, resetAllowed)
			if err != nil {
				g.logger().Error("guard resolve principal", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			switch d {
			case denyUnauthenticated:
				http.Redirect(w, r, orDefault(g.LoginPath, defaultLoginPath), http.StatusSeeOther)
			case denyResetRequired:
				http.Redirect(w, r, orDefault(g.ResetPath, defaultResetPath), http.StatusSeeOther)
			case denyForbidden:
				http.Redirect(w, r, orDefault(g.LandingPath, defaultLandingPath), http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
			}
		})
	}
}

func (g Guard) api(allowed check, resetAllowed bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, d, err := g.decide(r, allowed, resetAllowed)
			if err != nil {
				g.logger().Error("guard resolve principal", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			switch d {
			case denyUnauthenticated:
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			case denyResetRequired:
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "password reset required")
			case denyForbidden:
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
			default:
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
			}
		})
	}
}

func (g Guard) decide(r *http.Request, allowed check, resetAllowed bool) (*Principal, decision, error) {
	ctx := r.Context()
	p, err := g.Resolve(ctx)
	switch {
	case errors.Is(err, ErrNoPrincipal):
		g.denied(DenialUnauthenticated)
		return nil, denyUnauthenticated, nil
	case err != nil:
		return nil, allow, err
	}
	if p.PasswordResetRequired && !resetAllowed {
		g.denied(DenialResetRequired)
		return nil, denyResetRequired, nil
	}
	if !allowed(p) {
		g.denied(DenialForbidden)
		return nil, denyForbidden, nil
	}
	g.recordLogin(ctx, p)
	return p, allow, nil
}

// recordLogin stores last_login_at once per login session.
func (g Guard) recordLogin(ctx context.Context, p *Principal) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil || sess.Get(LoginRecordedKey) != "" {
		return
	}
	if err := g.Source.RecordLogin(ctx, p.ID); err != nil {
		g.logger().Warn("record last login", slog.String("admin_id", p.ID.String()), slog.Any("error", err))
		return
	}
	sess.Set(LoginRecordedKey, "1")
}

func (g Guard) denied(kind string) {
	if g.Metrics != nil {
		g.Metrics.GuardDenied(kind)
	}
}

func (g Guard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func anyOf(caps []Capability) check {
	return func(p *Principal) bool {
		for _, c := range caps {
			if p.Can(c) {
				return true
			}
		}
		return false
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
