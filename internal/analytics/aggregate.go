package analytics

import (
	"sort"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// Aggregate buckets incidents and signups over the days ending at now.
// Day series are zero-filled and ordered oldest first. Grouped counts are
// ordered by count descending, then label.
func Aggregate(days int, now time.Time, incidents []IncidentPoint, signups []time.Time) Report {
	if days <= 0 {
		days = DefaultWindowDays
	}
	to := now.UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -(days - 1))
	report := Report{Days: days, From: from, To: to}

	byDay := make(map[string]int, days)
	category := map[string]int{}
	severity := map[string]int{}
	status := map[string]int{}
	location := map[string]int{}
	for _, inc := range incidents {
		at := inc.CreatedAt.UTC()
		if at.Before(from) {
			continue
		}
		report.TotalIncidents++
		byDay[at.Format(dayLayout)]++
		category[labelOr(inc.Category, "other")]++
		severity[labelOr(inc.Severity, "unknown")]++
		status[labelOr(inc.Status, "unknown")]++
		if loc := strings.TrimSpace(inc.Location); loc != "" {
			location[loc]++
		}
	}

	growth := make(map[string]int, days)
	for _, at := range signups {
		at = at.UTC()
		if at.Before(from) {
			continue
		}
		report.NewUsers++
		growth[at.Format(dayLayout)]++
	}

	report.IncidentsByDay = daySeries(from, days, byDay)
	report.UserGrowth = daySeries(from, days, growth)
	report.ByCategory = ranked(category, 0)
	report.BySeverity = ranked(severity, 0)
	report.ByStatus = ranked(status, 0)
	report.TopLocations = ranked(location, topLocations)
	return report
}

func daySeries(from time.Time, days int, counts map[string]int) []Bucket {
	out := make([]Bucket, 0, days)
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, i).Format(dayLayout)
		out = append(out, Bucket{Label: day, Count: counts[day]})
	}
	return out
}

func ranked(counts map[string]int, limit int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for label, n := range counts {
		out = append(out, Bucket{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func labelOr(v, fallback string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return fallback
	}
	return v
}
