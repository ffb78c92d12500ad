package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"time"
)

// CSVExporter renders timeline rows as CSV.
type CSVExporter struct{}

// WriteCSV encodes rows with a header line.
func (CSVExporter) WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "admin", "email", "action", "target_type", "target_id", "details", "ip_address"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		details := ""
		if len(row.Details) > 0 {
			data, err := json.Marshal(row.Details)
			if err != nil {
				return nil, err
			}
			details = string(data)
		}
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.ActorName,
			row.ActorEmail,
			row.Action,
			row.TargetType,
			row.TargetID,
			details,
			row.IP,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
