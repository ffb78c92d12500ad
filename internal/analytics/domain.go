package analytics

import "time"

// DefaultWindowDays is the analytics window used when none is requested.
const DefaultWindowDays = 30

// Windows lists the selectable analytics windows in days.
var Windows = []int{7, 30, 90}

// topLocations bounds the location ranking.
const topLocations = 10

// DashboardStats are the headline counters of the dashboard.
type DashboardStats struct {
	TotalUsers           int `json:"totalUsers" db:"total_users"`
	ActiveUsers          int `json:"activeUsers" db:"active_users"`
	TotalIncidents       int `json:"totalIncidents" db:"total_incidents"`
	PendingIncidents     int `json:"pendingIncidents" db:"pending_incidents"`
	CriticalIncidents    int `json:"criticalIncidents" db:"critical_incidents"`
	TotalStaff           int `json:"totalStaff" db:"total_staff"`
	PendingVerifications int `json:"pendingVerifications" db:"pending_verifications"`
	VerifiedStaff        int `json:"verifiedStaff" db:"verified_staff"`
}

// RecentIncident is a compact incident row for the dashboard.
type RecentIncident struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Severity  string    `json:"severity" db:"severity"`
	Status    string    `json:"status" db:"status"`
	Location  string    `json:"location" db:"location"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// IncidentPoint is the slice of an alert row the aggregation reads.
type IncidentPoint struct {
	CreatedAt time.Time `db:"created_at"`
	Category  string    `db:"category"`
	Severity  string    `db:"severity"`
	Status    string    `db:"status"`
	Location  string    `db:"location"`
}

// Bucket is one labelled count.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Report is the aggregated analytics view over a window of days.
type Report struct {
	Days           int       `json:"days"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	TotalIncidents int       `json:"totalIncidents"`
	NewUsers       int       `json:"newUsers"`
	IncidentsByDay []Bucket  `json:"incidentsByDay"`
	ByCategory     []Bucket  `json:"byCategory"`
	BySeverity     []Bucket  `json:"bySeverity"`
	ByStatus       []Bucket  `json:"byStatus"`
	UserGrowth     []Bucket  `json:"userGrowth"`
	TopLocations   []Bucket  `json:"topLocations"`
}
