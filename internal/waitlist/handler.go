package waitlist

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
	"github.com/safespora/safespora-admin/internal/view"
)

// Handler serves the public signup endpoint and the admin waitlist.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	templates  *view.Engine
	csrf       *shared.CSRFManager
	guard      rbac.Guard
	validator  *validator.Validate
	joinLimit  int
	joinWindow time.Duration
	metrics    JoinCounter
}

// JoinCounter counts signup outcomes.
type JoinCounter interface {
	WaitlistJoin(outcome string)
}

// NewHandler builds Handler instance. joinLimit requests per joinWindow are
// accepted from one client IP.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard rbac.Guard, joinLimit int, joinWindow time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if joinLimit <= 0 {
		joinLimit = 5
	}
	if joinWindow <= 0 {
		joinWindow = time.Hour
	}
	return &Handler{
		logger: logger, service: service, templates: templates, csrf: csrf, guard: guard,
		validator: validator.New(), joinLimit: joinLimit, joinWindow: joinWindow,
	}
}

// WithMetrics attaches a signup outcome counter.
func (h *Handler) WithMetrics(m JoinCounter) *Handler {
	h.metrics = m
	return h
}

// MountPublic registers POST /join under /api/waitlist.
func (h *Handler) MountPublic(r chi.Router) {
	limiter := httprate.Limit(h.joinLimit, h.joinWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			h.count("rate_limited")
			httpx.JSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests. Please try again later."})
		}),
	)
	r.With(limiter).Post("/join", h.join)
}

// MountPages registers the admin listing under /admin/waitlist.
func (h *Handler) MountPages(r chi.Router) {
	r.With(h.guard.RequirePage(rbac.SettingsView)).Get("/", h.listEntries)
}

// MountAPI registers the launch announcement under /api/admin/waitlist.
func (h *Handler) MountAPI(r chi.Router) {
	r.With(h.guard.RequireAPI(rbac.SettingsEdit)).Post("/notify", h.notify)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.count("invalid")
		httpx.JSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	entry, err := h.service.Join(r.Context(), req)
	if err != nil {
		status, outcome := http.StatusInternalServerError, "error"
		message := "Failed to join waitlist"
		switch {
		case errors.Is(err, httpx.ErrValidation):
			status, outcome, message = http.StatusBadRequest, "invalid", publicMessage(err)
		case errors.Is(err, httpx.ErrDuplicate):
			status, outcome, message = http.StatusConflict, "duplicate", "This email is already on the waitlist"
		case errors.Is(err, httpx.ErrUnavailable):
			status, outcome, message = http.StatusServiceUnavailable, "busy", "The waitlist is busy, please try again"
			w.Header().Set("Retry-After", "2")
		default:
			h.logger.Error("waitlist join failed", slog.Any("error", err))
		}
		h.count(outcome)
		httpx.JSON(w, status, map[string]string{"error": message})
		return
	}
	h.count("joined")
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "Successfully joined waitlist",
		"data":    entry,
	})
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	filter := ListFilter{Search: r.URL.Query().Get("q"), Page: page, PageSize: perPage}
	if v, err := strconv.ParseBool(r.URL.Query().Get("invited")); err == nil {
		filter.Invited = &v
	}
	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list waitlist failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := map[string]any{
		"Entries":    result.Entries,
		"Stats":      result.Stats,
		"Pagination": result.Pagination,
		"Filter":     filter,
		"CanNotify":  rbac.PrincipalFromContext(r.Context()).Can(rbac.SettingsEdit),
	}
	if err := h.templates.Render(w, "pages/waitlist.html", view.NewTemplateData(r, h.csrf, "Waitlist", data)); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "emails must be a non-empty list of valid addresses")
		return
	}
	result, err := h.service.Notify(r.Context(), rbac.PrincipalFromContext(r.Context()), req)
	if err != nil {
		if !errors.Is(err, httpx.ErrForbidden) && !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("notify waitlist failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"total":   result.Total,
		"sent":    result.Sent,
		"failed":  result.Failed,
		"errors":  result.Errors,
	})
}

func (h *Handler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.WaitlistJoin(outcome)
	}
}

// publicMessage strips the sentinel prefix and capitalises the remainder.
func publicMessage(err error) string {
	msg, _ := strings.CutPrefix(err.Error(), httpx.ErrValidation.Error()+": ")
	if msg == "" {
		return "Invalid request"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
