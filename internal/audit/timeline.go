package audit

import (
	"time"

	"github.com/google/uuid"
)

// TimelineFilters holds the activity log filters.
type TimelineFilters struct {
	From       time.Time
	To         time.Time
	Actor      string
	TargetType string
	Action     string
	AdminID    uuid.UUID
	Page       int
	PageSize   int
}

// TimelineRow is one activity log line joined with the acting administrator.
type TimelineRow struct {
	At         time.Time      `db:"created_at"`
	ActorName  string         `db:"actor_name"`
	ActorEmail string         `db:"actor_email"`
	Action     string         `db:"action"`
	TargetType string         `db:"target_type"`
	TargetID   string         `db:"target_id"`
	Details    map[string]any `db:"details"`
	IP         string         `db:"ip_address"`
}

// PagingInfo carries simple next/previous paging.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// FiltersViewModel echoes the filters back to the template.
type FiltersViewModel struct {
	From       time.Time
	To         time.Time
	Actor      string
	TargetType string
	Action     string
}

// ViewModel bundles the activity page data.
type ViewModel struct {
	Filters FiltersViewModel
	Rows    []TimelineRow
	Paging  PagingInfo
}
