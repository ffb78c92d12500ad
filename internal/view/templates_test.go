package view

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safespora/safespora-admin/internal/rbac"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestDashboardNavFollowsPermissions(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	p := &rbac.Principal{ID: uuid.New(), FullName: "Ada Ops", Role: rbac.RoleStandard, IsActive: true, Permissions: rbac.NewGrid(rbac.IncidentsView)}
	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), p))

	rec := httptest.NewRecorder()
	data := NewTemplateData(req, nil, "Dashboard", map[string]any{})
	require.NoError(t, engine.Render(rec, "pages/dashboard.html", data))

	body := rec.Body.String()
	assert.Contains(t, body, "Ada Ops")
	assert.Contains(t, body, `href="/admin/incidents"`)
	assert.NotContains(t, body, `href="/admin/admins"`)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}
