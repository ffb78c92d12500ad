package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/safespora/safespora-admin/internal/platform/httpx"
)

// PermissionsHandler serves the permission catalog and the caller's effective grid.
type PermissionsHandler struct {
	guard Guard
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(guard Guard) *PermissionsHandler {
	return &PermissionsHandler{guard: guard}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAdminAPI()).Get("/me", h.effective)
	r.With(h.guard.RequireAPI(AdminsView)).Get("/", h.listPermissions)
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"modules":     Modules(),
		"permissions": Permissions(),
	})
}

func (h *PermissionsHandler) effective(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":        p.Role,
		"permissions": p.Effective(),
	})
}
