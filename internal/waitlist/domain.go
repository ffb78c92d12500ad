// Package waitlist manages the public pre-launch signup list and the launch
// announcement sent to it.
package waitlist

import (
	"time"

	"github.com/google/uuid"
)

// Audit action and target type recorded by this package.
const (
	ActionNotify   = "notify_waitlist"
	TargetWaitlist = "waitlist"
)

// Entry is one waitlist signup.
type Entry struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Email     string     `db:"email" json:"email"`
	City      *string    `db:"city" json:"city,omitempty"`
	Position  int        `db:"position" json:"position"`
	Invited   bool       `db:"invited" json:"invited"`
	InvitedAt *time.Time `db:"invited_at" json:"invitedAt,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

// JoinRequest is the public signup payload.
type JoinRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=100,personname"`
	Email string `json:"email" validate:"required,email,max=254"`
	City  string `json:"city" validate:"omitempty,max=100,cityname"`
}

// NotifyRequest sends the launch announcement to the listed emails.
type NotifyRequest struct {
	Emails       []string `json:"emails" validate:"required,min=1,max=500,dive,required,email"`
	DownloadLink string   `json:"downloadLink" validate:"omitempty,url"`
}

// NotifyResult summarises a launch announcement run.
type NotifyResult struct {
	Total  int      `json:"total"`
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// ListFilter narrows the admin listing.
type ListFilter struct {
	Search   string
	Invited  *bool
	Page     int
	PageSize int
}

// Stats summarises the list for the admin page.
type Stats struct {
	Total   int `db:"total"`
	Invited int `db:"invited"`
}
