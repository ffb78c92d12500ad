// Package admins manages administrator accounts: invitations, permission
// grids, activation and login bookkeeping.
package admins

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
)

// InvitationStatus tracks an invitation through its lifecycle.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// DefaultInviteTTL is how long an invitation stays pending.
const DefaultInviteTTL = 7 * 24 * time.Hour

// Activity log actions written by the service.
const (
	ActionInvite            = "invite_admin"
	ActionUpdatePermissions = "update_admin_permissions"
	ActionActivate          = "activate_admin"
	ActionDeactivate        = "deactivate_admin"
	ActionChangePassword    = "change_password"
	ActionRevokeInvitation  = "revoke_invitation"
	ActionBootstrap         = "bootstrap_super_admin"

	targetAdmin      = "admin_user"
	targetInvitation = "admin_invitation"
)

var (
	// ErrSelfTarget rejects status changes aimed at the caller's own account.
	ErrSelfTarget = fmt.Errorf("%w: you cannot change the status of your own account", httpx.ErrValidation)
	// ErrDuplicateInvitation reports a pending invitation for the same email.
	ErrDuplicateInvitation = fmt.Errorf("%w: a pending invitation already exists for this email", httpx.ErrDuplicate)
	// ErrAdminExists reports an administrator already registered with the email.
	ErrAdminExists = fmt.Errorf("%w: an admin with this email already exists", httpx.ErrDuplicate)
	// ErrRollbackFailed marks an invite whose compensations did not all succeed.
	ErrRollbackFailed = errors.New("admins: invite rollback failed")
)

// Invitation is a pending or settled invitation to join the back office.
type Invitation struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	Email       string           `db:"email" json:"email"`
	FullName    string           `db:"full_name" json:"fullName"`
	Role        rbac.Role        `db:"role" json:"role"`
	Permissions rbac.Grid        `db:"permissions" json:"permissions"`
	InvitedBy   uuid.NullUUID    `db:"invited_by" json:"invitedBy"`
	Status      InvitationStatus `db:"status" json:"status"`
	ExpiresAt   time.Time        `db:"expires_at" json:"expiresAt"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
	AcceptedAt  *time.Time       `db:"accepted_at" json:"acceptedAt,omitempty"`
}

// AcceptedInvitation is the invitation an administrator joined through.
type AcceptedInvitation struct {
	Invitation
	InviterEmail *string `db:"inviter_email" json:"inviterEmail,omitempty"`
}

// InviteRequest is the payload of the invite endpoint.
type InviteRequest struct {
	Email       string    `json:"email" validate:"required,email,max=254"`
	FullName    string    `json:"fullName" validate:"required,min=2,max=120"`
	Role        string    `json:"role" validate:"required,oneof=standard super admin super_admin"`
	Permissions rbac.Grid `json:"permissions"`
}

// InviteResult is returned to the inviter. The temporary credential is shown
// once and never stored.
type InviteResult struct {
	Principal         *rbac.Principal `json:"admin"`
	Invitation        *Invitation     `json:"invitation"`
	TemporaryPassword string          `json:"temporaryPassword"`
	EmailQueued       bool            `json:"emailQueued"`
}

// Status filters for List.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// ListFilter narrows the administrator listing.
type ListFilter struct {
	Search   string
	Role     rbac.Role
	Status   string
	Page     int
	PageSize int
}

// Patch carries partial updates; nil fields are left untouched.
type Patch struct {
	Permissions           *rbac.Grid
	IsActive              *bool
	PasswordResetRequired *bool
	LastLoginAt           *time.Time
}

func (p Patch) empty() bool {
	return p.Permissions == nil && p.IsActive == nil && p.PasswordResetRequired == nil && p.LastLoginAt == nil
}

func ptr[T any](v T) *T { return &v }
