package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
	"github.com/safespora/safespora-admin/internal/view"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     rbac.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard, validator: validator.New()}
}

// MountPages registers the user pages under /admin/users.
func (h *Handler) MountPages(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePage(rbac.UsersView))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.showUser)
	})
}

// MountAPI registers the moderation API under /api/admin/users.
func (h *Handler) MountAPI(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAPI(rbac.UsersEdit))
		r.Post("/suspend", h.suspend)
		r.Post("/unsuspend", h.unsuspend)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	filter := ListFilter{
		Search:   r.URL.Query().Get("q"),
		Status:   r.URL.Query().Get("status"),
		Page:     page,
		PageSize: perPage,
	}
	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users.html", "Users", map[string]any{
		"Users":      result.Users,
		"Pagination": result.Pagination,
		"Filter":     filter,
		"CanEdit":    rbac.PrincipalFromContext(r.Context()).Can(rbac.UsersEdit),
	})
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	user, err := h.service.Detail(r.Context(), id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load user failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	title := user.FullName
	if title == "" {
		title = "Unnamed user"
	}
	h.render(w, r, "pages/user_detail.html", title, map[string]any{
		"User":    user,
		"CanEdit": rbac.PrincipalFromContext(r.Context()).Can(rbac.UsersEdit),
	})
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	var req SuspendRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := httpx.ParseID(req.UserID, "userId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	err = h.service.Suspend(r.Context(), rbac.PrincipalFromContext(r.Context()), id, req.Reason)
	h.respond(w, "suspend user", err)
}

func (h *Handler) unsuspend(w http.ResponseWriter, r *http.Request) {
	var req UnsuspendRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := httpx.ParseID(req.UserID, "userId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	err = h.service.Unsuspend(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	h.respond(w, "unsuspend user", err)
}

// decode reads and validates a JSON body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing required fields")
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, op string, err error) {
	if err != nil {
		if !isClientError(err) {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any) {
	if err := h.templates.Render(w, template, view.NewTemplateData(r, h.csrf, title, data)); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func isClientError(err error) bool {
	for _, target := range []error{httpx.ErrValidation, httpx.ErrNotFound, httpx.ErrForbidden} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
