package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/safespora/safespora-admin/internal/platform/db"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Entry is one administrative action. Entries are append-only.
type Entry struct {
	ActorID    uuid.UUID
	Action     string
	TargetType string
	TargetID   string
	Details    map[string]any
	IP         string
	At         time.Time
}

// Recorder appends entries to admin_activity_logs.
type Recorder struct {
	db  db.DBTX
	now func() time.Time
}

// NewRecorder returns a Recorder writing through conn.
func NewRecorder(conn db.DBTX) *Recorder {
	return &Recorder{db: conn, now: time.Now}
}

// Record persists the entry.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit: recorder not initialised")
	}
	if e.Action == "" || e.TargetType == "" || e.TargetID == "" {
		return errors.New("audit: entry requires action/target_type/target_id")
	}
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("audit: encode details: %w", err)
	}
	at := e.At
	if at.IsZero() {
		at = r.now()
	}
	var actor any
	if e.ActorID != uuid.Nil {
		actor = e.ActorID
	}
	if e.IP == "" {
		e.IP = ClientIP(ctx)
	}
	sql, args, err := psql.Insert("admin_activity_logs").
		Columns("admin_id", "action", "target_type", "target_id", "details", "ip_address", "created_at").
		Values(actor, e.Action, e.TargetType, e.TargetID, string(detailsJSON), e.IP, at.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("audit: build insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}
