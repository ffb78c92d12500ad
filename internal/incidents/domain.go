package incidents

import (
	"time"

	"github.com/google/uuid"
)

// Incident statuses.
const (
	StatusActive      = "active"
	StatusResolved    = "resolved"
	StatusFalseReport = "false_report"
)

// Severities accepted by the list filter.
var Severities = []string{"low", "medium", "high", "critical"}

// Audit actions and target type recorded by this package.
const (
	ActionResolve     = "resolve_incident"
	ActionFalseReport = "mark_false_report"
	ActionAddNote     = "add_incident_note"
	ActionDelete      = "delete_incident"
	TargetIncident    = "incident"
)

// Incident is a community alert under moderation.
type Incident struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	Title         string        `db:"title" json:"title"`
	Description   string        `db:"description" json:"description"`
	Category      string        `db:"category" json:"category"`
	Severity      string        `db:"severity" json:"severity"`
	Status        string        `db:"status" json:"status"`
	Location      string        `db:"location" json:"location"`
	AdminNotes    *string       `db:"admin_notes" json:"adminNotes,omitempty"`
	ReporterName  string        `db:"reporter_name" json:"reporterName"`
	Confirmations int           `db:"confirmations" json:"confirmations"`
	ResolvedAt    *time.Time    `db:"resolved_at" json:"resolvedAt,omitempty"`
	ResolvedBy    uuid.NullUUID `db:"resolved_by" json:"resolvedBy"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
}

// ListFilter narrows the incident listing.
type ListFilter struct {
	Search   string
	Status   string
	Severity string
	Category string
	Page     int
	PageSize int
}

// Counts summarises the incident queue.
type Counts struct {
	Total    int `db:"total"`
	Active   int `db:"active"`
	Resolved int `db:"resolved"`
	Critical int `db:"critical"`
}

// TargetRequest identifies one incident.
type TargetRequest struct {
	IncidentID string `json:"incidentId" validate:"required,uuid"`
}

// NoteRequest sets or clears the moderator note of an incident.
type NoteRequest struct {
	IncidentID string `json:"incidentId" validate:"required,uuid"`
	Note       string `json:"note" validate:"max=2000"`
}
