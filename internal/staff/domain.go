package staff

import (
	"time"

	"github.com/google/uuid"
)

// Verification statuses.
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusRejected = "rejected"
	StatusFlagged  = "flagged"
)

// Audit actions and target type recorded by this package.
const (
	ActionVerify   = "verify_staff"
	ActionReject   = "reject_staff"
	ActionFlag     = "flag_staff"
	TargetStaff    = "staff_record"
	maxReasonChars = 1000
)

// Record is a staff member awaiting or holding verification.
type Record struct {
	ID                   uuid.UUID     `db:"id" json:"id"`
	FullName             string        `db:"full_name" json:"fullName"`
	Email                string        `db:"email" json:"email"`
	Organisation         string        `db:"organisation" json:"organisation"`
	StaffRole            string        `db:"staff_role" json:"staffRole"`
	Status               string        `db:"status" json:"status"`
	BackgroundCheckNotes *string       `db:"background_check_notes" json:"backgroundCheckNotes,omitempty"`
	RejectionReason      *string       `db:"rejection_reason" json:"rejectionReason,omitempty"`
	FlagReason           *string       `db:"flag_reason" json:"flagReason,omitempty"`
	VerifiedAt           *time.Time    `db:"verified_at" json:"verifiedAt,omitempty"`
	VerifiedBy           uuid.NullUUID `db:"verified_by" json:"verifiedBy"`
	CreatedAt            time.Time     `db:"created_at" json:"createdAt"`
}

// Document is a credential uploaded for a staff record.
type Document struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DocumentType string    `db:"document_type" json:"documentType"`
	DocumentURL  string    `db:"document_url" json:"documentUrl"`
	UploadedAt   time.Time `db:"uploaded_at" json:"uploadedAt"`
}

// Review is a community rating of a staff member.
type Review struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ReviewerName *string   `db:"reviewer_name" json:"reviewerName,omitempty"`
	Rating       int       `db:"rating" json:"rating"`
	Comment      string    `db:"comment" json:"comment"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Report is a complaint filed against a staff member.
type Report struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ReporterName *string   `db:"reporter_name" json:"reporterName,omitempty"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	Severity     string    `db:"severity" json:"severity"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Detail is one record with everything attached to it.
type Detail struct {
	Record
	Documents []Document
	Reviews   []Review
	Reports   []Report
}

// AverageRating returns the mean review rating, or 0 without reviews.
func (d Detail) AverageRating() float64 {
	if len(d.Reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range d.Reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(d.Reviews))
}

// ListFilter narrows the staff listing.
type ListFilter struct {
	Search   string
	Status   string
	Page     int
	PageSize int
}

// Counts summarises the verification queue.
type Counts struct {
	Total    int `db:"total"`
	Pending  int `db:"pending"`
	Verified int `db:"verified"`
	Flagged  int `db:"flagged"`
}

// Decision is the outcome applied to a record. Note carries background check
// notes for a verification and the reason for a rejection or flag.
type Decision struct {
	Status string
	Note   *string
}

// VerifyRequest approves a record.
type VerifyRequest struct {
	StaffID string `json:"staffId" validate:"required,uuid"`
	Notes   string `json:"notes" validate:"max=1000"`
}

// ReasonRequest rejects or flags a record.
type ReasonRequest struct {
	StaffID string `json:"staffId" validate:"required,uuid"`
	Reason  string `json:"reason" validate:"required,max=1000"`
}
