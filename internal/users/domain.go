package users

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions and target type recorded by this package.
const (
	ActionSuspend   = "suspend_user"
	ActionUnsuspend = "unsuspend_user"
	TargetUser      = "user"
)

// User is a community member (reporter) as seen by moderators.
type User struct {
	ID                 uuid.UUID     `db:"id" json:"id"`
	FullName           string        `db:"full_name" json:"fullName"`
	Email              string        `db:"email" json:"email"`
	Phone              string        `db:"phone" json:"phone"`
	City               string        `db:"city" json:"city"`
	IsSuspended        bool          `db:"is_suspended" json:"isSuspended"`
	SuspensionReason   *string       `db:"suspension_reason" json:"suspensionReason,omitempty"`
	SuspendedAt        *time.Time    `db:"suspended_at" json:"suspendedAt,omitempty"`
	SuspendedBy        uuid.NullUUID `db:"suspended_by" json:"suspendedBy"`
	LastActiveAt       *time.Time    `db:"last_active_at" json:"lastActiveAt,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"createdAt"`
	TotalReports       int           `db:"total_reports" json:"totalReports"`
	TotalConfirmations int           `db:"total_confirmations" json:"totalConfirmations"`
}

// Report is an incident the user filed.
type Report struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Category  string    `db:"category" json:"category"`
	Severity  string    `db:"severity" json:"severity"`
	Location  string    `db:"location" json:"location"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Confirmation is the user vouching for an incident someone else filed.
type Confirmation struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AlertID       uuid.UUID `db:"alert_id" json:"alertId"`
	AlertTitle    *string   `db:"alert_title" json:"alertTitle,omitempty"`
	AlertLocation *string   `db:"alert_location" json:"alertLocation,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Detail is one user with their latest reports and confirmations.
type Detail struct {
	User
	Reports       []Report
	Confirmations []Confirmation
}

// Suspension filters for ListFilter.
const (
	FilterSuspended = "suspended"
	FilterActive    = "active"
)

// ListFilter narrows the user listing.
type ListFilter struct {
	Search   string
	Status   string
	Page     int
	PageSize int
}

// SuspendRequest is the payload of the suspend endpoint.
type SuspendRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// UnsuspendRequest is the payload of the unsuspend endpoint.
type UnsuspendRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
}
