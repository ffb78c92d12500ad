package auth_test

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/safespora/safespora-admin/internal/auth"
	"github.com/safespora/safespora-admin/internal/shared"
)

func chiRouter(h *auth.Handler, sessions *shared.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			ctx := shared.ContextWithSession(req.Context(), sess)
			req = req.WithContext(ctx)
			sw := &commitWriter{ResponseWriter: w, commit: func() {
				if err := sessions.Commit(ctx, w, req, sess); err != nil {
					slog.Default().Error("commit session", slog.Any("error", err))
				}
			}}
			next.ServeHTTP(sw, req)
			sw.flush()
		})
	})
	r.Route("/auth", h.MountRoutes)
	r.Route("/api/admin/profile", h.MountAPI)
	return r
}

// commitWriter persists the session before the first header write.
type commitWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *commitWriter) flush() {
	if !w.committed {
		w.committed = true
		w.commit()
	}
}

func (w *commitWriter) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}
