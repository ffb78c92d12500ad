package rbac

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/safespora/safespora-admin/internal/platform/httpx"
)

// ThrottlePerAdmin limits a route to limit requests per window for each
// administrator. It must run after a guard so the principal is resolved;
// requests without one are keyed by client IP.
func ThrottlePerAdmin(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(adminKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too many requests", "export limit reached, try again later")
		}),
	)
}

func adminKey(r *http.Request) (string, error) {
	if p := PrincipalFromContext(r.Context()); p != nil {
		return "admin:" + p.ID.String(), nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}
