package staff

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

// Handler serves the staff verification page and API.
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

// MountPages registers the staff page under /admin/staff.
func (h *Handler) MountPages(r chi.Router) {
	r.With(h.guard.RequirePage(rbac.StaffView)).Get("/", h.listStaff)
	r.With(h.guard.RequirePage(rbac.StaffView)).Get("/{id}", h.showStaff)
}

// MountAPI registers the verification API under /api/admin/staff.
func (h *Handler) MountAPI(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAPI(rbac.StaffEdit))
		r.Post("/verify", h.verify)
		r.Post("/reject", h.reject)
		r.Post("/flag", h.flag)
	})
}

func (h *Handler) listStaff(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	filter := ListFilter{
		Search:   r.URL.Query().Get("q"),
		Status:   r.URL.Query().Get("status"),
		Page:     page,
		PageSize: perPage,
	}
	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list staff failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := map[string]any{
		"Records":    result.Records,
		"Counts":     result.Counts,
		"Pagination": result.Pagination,
		"Filter":     filter,
		"CanEdit":    rbac.PrincipalFromContext(r.Context()).Can(rbac.StaffEdit),
	}
	if err := h.templates.Render(w, "pages/staff.html", view.NewTemplateData(r, h.csrf, "Staff verification", data)); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) showStaff(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load staff record failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := map[string]any{
		"Staff":   detail,
		"CanEdit": rbac.PrincipalFromContext(r.Context()).Can(rbac.StaffEdit),
	}
	if err := h.templates.Render(w, "pages/staff_detail.html", view.NewTemplateData(r, h.csrf, detail.FullName, data)); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := httpx.ParseID(req.StaffID, "staffId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	err = h.service.Verify(r.Context(), rbac.PrincipalFromContext(r.Context()), id, req.Notes)
	h.respond(w, "verify staff", err)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := httpx.ParseID(req.StaffID, "staffId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	err = h.service.Reject(r.Context(), rbac.PrincipalFromContext(r.Context()), id, req.Reason)
	h.respond(w, "reject staff", err)
}

func (h *Handler) flag(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := httpx.ParseID(req.StaffID, "staffId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	err = h.service.Flag(r.Context(), rbac.PrincipalFromContext(r.Context()), id, req.Reason)
	h.respond(w, "flag staff", err)
}

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
		if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrForbidden) && !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}
