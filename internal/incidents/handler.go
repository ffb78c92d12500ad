package incidents

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

// Handler serves incident moderation pages and API.
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

// MountPages registers the incident pages under /admin/incidents.
func (h *Handler) MountPages(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePage(rbac.IncidentsView))
		r.Get("/", h.listIncidents)
		r.Get("/{id}", h.showIncident)
	})
}

// MountAPI registers the moderation API under /api/admin/incidents.
func (h *Handler) MountAPI(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAPI(rbac.IncidentsEdit))
		r.Post("/resolve", h.resolve)
		r.Post("/false-report", h.falseReport)
		r.Post("/add-note", h.addNote)
	})
	r.With(h.guard.RequireAPI(rbac.IncidentsDelete)).Post("/delete", h.delete)
}

func (h *Handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	q := r.URL.Query()
	filter := ListFilter{
		Search:   q.Get("q"),
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
		Category: q.Get("category"),
		Page:     page,
		PageSize: perPage,
	}
	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list incidents failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/incidents.html", "Incidents", h.pageData(r, map[string]any{
		"Incidents":  result.Incidents,
		"Counts":     result.Counts,
		"Pagination": result.Pagination,
		"Filter":     filter,
		"Severities": Severities,
	}))
}

func (h *Handler) showIncident(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	inc, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load incident failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/incidents.html", inc.Title, h.pageData(r, map[string]any{
		"Incidents": []Incident{*inc},
		"Detail":    true,
	}))
}

func (h *Handler) pageData(r *http.Request, data map[string]any) map[string]any {
	p := rbac.PrincipalFromContext(r.Context())
	data["CanEdit"] = p.Can(rbac.IncidentsEdit)
	data["CanDelete"] = p.Can(rbac.IncidentsDelete)
	return data
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := httpx.ParseID(req.IncidentID, "incidentId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	err = h.service.Resolve(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	h.respond(w, "resolve incident", err)
}

func (h *Handler) falseReport(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := httpx.ParseID(req.IncidentID, "incidentId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	err = h.service.MarkFalseReport(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	h.respond(w, "mark false report", err)
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := httpx.ParseID(req.IncidentID, "incidentId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	err = h.service.AddNote(r.Context(), rbac.PrincipalFromContext(r.Context()), id, req.Note)
	h.respond(w, "add incident note", err)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := httpx.ParseID(req.IncidentID, "incidentId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	err = h.service.Delete(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	h.respond(w, "delete incident", err)
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

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any) {
	if err := h.templates.Render(w, template, view.NewTemplateData(r, h.csrf, title, data)); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
