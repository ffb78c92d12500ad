package rbac

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperAllowsEverythingWithEmptyGrid(t *testing.T) {
	p := Snapshot{Role: RoleSuper, Active: true}
	for _, c := range Capabilities() {
		assert.True(t, Allows(p, c), c.String())
	}
	assert.True(t, AllowsNamed(p, "admins", "invite"))
}

func TestStandardDeniesAbsentEntries(t *testing.T) {
	p := Snapshot{Role: RoleStandard, Active: true, Grid: NewGrid(UsersView)}
	for _, c := range Capabilities() {
		assert.Equal(t, c == UsersView, Allows(p, c), c.String())
	}
}

func TestInactiveDeniesRegardlessOfRole(t *testing.T) {
	for _, role := range []Role{RoleStandard, RoleSuper} {
		p := Snapshot{Role: role, Active: false, Grid: FullGrid()}
		for _, c := range Capabilities() {
			assert.False(t, Allows(p, c))
		}
		assert.False(t, IsSuper(p))
		assert.True(t, Effective(p).IsEmpty())
	}
}

func TestNoImplicitCascade(t *testing.T) {
	// scenario: incidents.view holder asks for incidents.edit
	p := Snapshot{Role: RoleStandard, Active: true, Grid: GridFromMap(map[string]map[string]bool{
		"incidents": {"view": true},
	})}
	assert.True(t, Allows(p, IncidentsView))
	assert.False(t, Allows(p, IncidentsEdit))

	editOnly := Snapshot{Role: RoleStandard, Active: true, Grid: NewGrid(IncidentsEdit)}
	assert.False(t, Allows(editOnly, IncidentsView))
}

func TestUnknownPairsDeny(t *testing.T) {
	p := Snapshot{Role: RoleSuper, Active: true}
	assert.False(t, AllowsNamed(p, "billing", "view"))
	assert.False(t, AllowsNamed(p, "analytics", "edit"))
	assert.False(t, Allows(p, capabilityCount))
	assert.False(t, Allows(p, Capability(200)))
}

func TestParseCapability(t *testing.T) {
	c, ok := ParseCapability(" Admins ", "INVITE")
	require.True(t, ok)
	assert.Equal(t, AdminsInvite, c)
	assert.Equal(t, "admins.invite", c.String())

	_, ok = ParseCapability("admins", "approve")
	assert.False(t, ok)
	assert.Len(t, Capabilities(), 18)
	assert.Equal(t, []Module{ModuleUsers, ModuleIncidents, ModuleStaff, ModuleAnalytics, ModuleModeration, ModuleSettings, ModuleAdmins}, Modules())
	assert.Len(t, CapabilitiesFor(ModuleAdmins), 4)
}

func TestGridJSONDropsUnknownKeys(t *testing.T) {
	var g Grid
	require.NoError(t, json.Unmarshal([]byte(`{
		"incidents": {"view": true, "edit": false, "approve": true},
		"billing": {"view": true},
		"users": {"view": "yes", "edit": true}
	}`), &g))
	assert.Equal(t, []Capability{UsersEdit, IncidentsView}, g.Granted())

	require.NoError(t, json.Unmarshal([]byte(`null`), &g))
	assert.True(t, g.IsEmpty())

	data, err := json.Marshal(NewGrid(AnalyticsView))
	require.NoError(t, err)
	var decoded map[string]map[string]bool
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded["analytics"]["view"])
	assert.False(t, decoded["admins"]["invite"])
	assert.Len(t, decoded, 7)
}

func TestGridScan(t *testing.T) {
	var g Grid
	require.NoError(t, g.Scan([]byte(`{"staff":{"edit":true}}`)))
	assert.True(t, g.Has(StaffEdit))
	require.NoError(t, g.Scan(nil))
	assert.True(t, g.IsEmpty())
	require.NoError(t, g.Scan(`{"admins":{"view":true}}`))
	assert.True(t, g.Has(AdminsView))
	require.Error(t, g.Scan(42))

	v, err := NewGrid(UsersView).Value()
	require.NoError(t, err)
	assert.Contains(t, v, `"users":{`)
}

func TestDiffSingleChange(t *testing.T) {
	before := GridFromMap(map[string]map[string]bool{"incidents": {"view": true, "edit": false}})
	after := GridFromMap(map[string]map[string]bool{"incidents": {"view": true, "edit": true}})

	changes := Diff(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, PermissionChange{Module: ModuleIncidents, Action: ActionEdit, OldValue: false, NewValue: true}, changes[0])
}

func TestDiffCatalogOrder(t *testing.T) {
	changes := Diff(NewGrid(AdminsInvite), NewGrid(UsersView))
	require.Len(t, changes, 2)
	assert.Equal(t, ModuleUsers, changes[0].Module)
	assert.Equal(t, ModuleAdmins, changes[1].Module)
	assert.Empty(t, Diff(FullGrid(), FullGrid()))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("super")
	require.True(t, ok)
	assert.Equal(t, RoleSuper, r)
	r, ok = ParseRole("standard")
	require.True(t, ok)
	assert.Equal(t, RoleStandard, r)
	_, ok = ParseRole("root")
	assert.False(t, ok)
}
