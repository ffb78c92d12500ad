package rbac

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the administrative role of a principal.
type Role string

const (
	// RoleStandard principals are limited to their permission grid.
	RoleStandard Role = "standard"
	// RoleSuper principals hold every capability regardless of their stored grid.
	RoleSuper Role = "super_admin"
)

// ParseRole accepts the stored form and the short "super" alias.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "admin":
		return RoleStandard, true
	case "super", "super_admin":
		return RoleSuper, true
	}
	return "", false
}

// Label is the display name of the role.
func (r Role) Label() string {
	if r == RoleSuper {
		return "Super Admin"
	}
	return "Admin"
}

// Principal is an administrator account.
type Principal struct {
	ID                    uuid.UUID     `db:"id" json:"id"`
	Email                 string        `db:"email" json:"email"`
	FullName              string        `db:"full_name" json:"fullName"`
	Role                  Role          `db:"role" json:"role"`
	Permissions           Grid          `db:"permissions" json:"permissions"`
	IsActive              bool          `db:"is_active" json:"isActive"`
	PasswordResetRequired bool          `db:"password_reset_required" json:"passwordResetRequired"`
	InvitedBy             uuid.NullUUID `db:"invited_by" json:"invitedBy"`
	CreatedAt             time.Time     `db:"created_at" json:"createdAt"`
	LastLoginAt           *time.Time    `db:"last_login_at" json:"lastLoginAt,omitempty"`
}

// Snapshot returns the slice of the principal the permission model reads.
func (p *Principal) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	return Snapshot{Role: p.Role, Grid: p.Permissions, Active: p.IsActive}
}

// IsSuper reports whether p is an active super principal.
func (p *Principal) IsSuper() bool {
	return IsSuper(p.Snapshot())
}

// Can reports whether p may exercise c.
func (p *Principal) Can(c Capability) bool {
	return Allows(p.Snapshot(), c)
}

// Effective returns the grid p effectively holds.
func (p *Principal) Effective() Grid {
	return Effective(p.Snapshot())
}

// Permission describes one catalog entry for listings.
type Permission struct {
	Name        string `json:"name"`
	Module      Module `json:"module"`
	Action      Action `json:"action"`
	Description string `json:"description"`
}

// Permissions lists the catalog.
func Permissions() []Permission {
	out := make([]Permission, 0, capabilityCount)
	for _, c := range Capabilities() {
		out = append(out, Permission{Name: c.String(), Module: c.Module(), Action: c.Action(), Description: c.Description()})
	}
	return out
}
