package rbac

import "strings"

// Module names a permission module of the fixed catalog.
type Module string

// Action names an operation within a module.
type Action string

// Catalog modules.
const (
	ModuleUsers      Module = "users"
	ModuleIncidents  Module = "incidents"
	ModuleStaff      Module = "staff"
	ModuleAnalytics  Module = "analytics"
	ModuleModeration Module = "moderation"
	ModuleSettings   Module = "settings"
	ModuleAdmins     Module = "admins"
)

// Catalog actions.
const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionInvite Action = "invite"
)

// Capability is one grantable (module, action) pair. The set is closed: values
// outside the catalog are never constructed by this package.
type Capability uint8

// Catalog capabilities, in display order.
const (
	UsersView Capability = iota
	UsersEdit
	UsersDelete
	IncidentsView
	IncidentsEdit
	IncidentsDelete
	StaffView
	StaffEdit
	StaffDelete
	AnalyticsView
	ModerationView
	ModerationEdit
	SettingsView
	SettingsEdit
	AdminsView
	AdminsEdit
	AdminsDelete
	AdminsInvite

	capabilityCount
)

type catalogEntry struct {
	module      Module
	action      Action
	description string
}

var catalog = [capabilityCount]catalogEntry{
	UsersView:       {ModuleUsers, ActionView, "View community users and profiles"},
	UsersEdit:       {ModuleUsers, ActionEdit, "Suspend and reinstate users"},
	UsersDelete:     {ModuleUsers, ActionDelete, "Delete user accounts"},
	IncidentsView:   {ModuleIncidents, ActionView, "View incident reports"},
	IncidentsEdit:   {ModuleIncidents, ActionEdit, "Resolve, annotate and flag incidents"},
	IncidentsDelete: {ModuleIncidents, ActionDelete, "Delete incident reports"},
	StaffView:       {ModuleStaff, ActionView, "View staff verification queue"},
	StaffEdit:       {ModuleStaff, ActionEdit, "Verify, reject and flag staff"},
	StaffDelete:     {ModuleStaff, ActionDelete, "Remove staff records"},
	AnalyticsView:   {ModuleAnalytics, ActionView, "View analytics"},
	ModerationView:  {ModuleModeration, ActionView, "View the moderation queue"},
	ModerationEdit:  {ModuleModeration, ActionEdit, "Act on moderation items"},
	SettingsView:    {ModuleSettings, ActionView, "View settings, activity log and waitlist"},
	SettingsEdit:    {ModuleSettings, ActionEdit, "Change settings and notify the waitlist"},
	AdminsView:      {ModuleAdmins, ActionView, "View administrators"},
	AdminsEdit:      {ModuleAdmins, ActionEdit, "Edit administrator profiles"},
	AdminsDelete:    {ModuleAdmins, ActionDelete, "Activate and deactivate administrators"},
	AdminsInvite:    {ModuleAdmins, ActionInvite, "Invite administrators"},
}

var byName = func() map[Module]map[Action]Capability {
	idx := make(map[Module]map[Action]Capability)
	for i, e := range catalog {
		if idx[e.module] == nil {
			idx[e.module] = make(map[Action]Capability)
		}
		idx[e.module][e.action] = Capability(i)
	}
	return idx
}()

// Valid reports whether c belongs to the catalog.
func (c Capability) Valid() bool { return c < capabilityCount }

// Module returns the module of c, or "" when c is not in the catalog.
func (c Capability) Module() Module {
	if !c.Valid() {
		return ""
	}
	return catalog[c].module
}

// Action returns the action of c, or "" when c is not in the catalog.
func (c Capability) Action() Action {
	if !c.Valid() {
		return ""
	}
	return catalog[c].action
}

// Description returns the human-readable summary of c.
func (c Capability) Description() string {
	if !c.Valid() {
		return ""
	}
	return catalog[c].description
}

// String renders c as "module.action".
func (c Capability) String() string {
	if !c.Valid() {
		return "invalid"
	}
	return string(catalog[c].module) + "." + string(catalog[c].action)
}

// ParseCapability resolves a module/action pair. Lookup is case-insensitive;
// pairs outside the catalog report false.
func ParseCapability(module, action string) (Capability, bool) {
	actions, ok := byName[Module(strings.ToLower(strings.TrimSpace(module)))]
	if !ok {
		return 0, false
	}
	c, ok := actions[Action(strings.ToLower(strings.TrimSpace(action)))]
	return c, ok
}

// Capabilities lists every catalog capability in display order.
func Capabilities() []Capability {
	out := make([]Capability, capabilityCount)
	for i := range out {
		out[i] = Capability(i)
	}
	return out
}

// Modules lists catalog modules in display order.
func Modules() []Module {
	var out []Module
	seen := make(map[Module]bool)
	for _, e := range catalog {
		if !seen[e.module] {
			seen[e.module] = true
			out = append(out, e.module)
		}
	}
	return out
}

// CapabilitiesFor lists the capabilities of one module in display order.
func CapabilitiesFor(m Module) []Capability {
	var out []Capability
	for i, e := range catalog {
		if e.module == m {
			out = append(out, Capability(i))
		}
	}
	return out
}
