package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/safespora/safespora-admin/internal/analytics"
)

// WriteReportCSV serialises an analytics report as consecutive CSV sections
// separated by blank lines.
func WriteReportCSV(w io.Writer, report analytics.Report) error {
	writer := csv.NewWriter(w)
	sections := []struct {
		title   string
		buckets []analytics.Bucket
	}{
		{"Incidents by day", report.IncidentsByDay},
		{"New users by day", report.UserGrowth},
		{"Incidents by category", report.ByCategory},
		{"Incidents by severity", report.BySeverity},
		{"Incidents by status", report.ByStatus},
		{"Top locations", report.TopLocations},
	}
	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	summary := [][]string{
		{"From", report.From.Format("2006-01-02")},
		{"To", report.To.Format("2006-01-02")},
		{"Total incidents", strconv.Itoa(report.TotalIncidents)},
		{"New users", strconv.Itoa(report.NewUsers)},
	}
	if err := writer.WriteAll(summary); err != nil {
		return err
	}
	for _, section := range sections {
		if err := writeBuckets(writer, section.title, section.buckets); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeBuckets(writer *csv.Writer, title string, buckets []analytics.Bucket) error {
	if err := writer.Write(nil); err != nil {
		return err
	}
	if err := writer.Write([]string{title, "Count"}); err != nil {
		return err
	}
	for _, b := range buckets {
		if err := writer.Write([]string{b.Label, strconv.Itoa(b.Count)}); err != nil {
			return err
		}
	}
	return nil
}
