package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	activeUserWindow = 30 * 24 * time.Hour
	recentIncidents  = 5
)

// Service coordinates analytics query execution with the cache layer.
// Concurrent misses for the same key share one database load.
type Service struct {
	repo   Repository
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a Repository with a Cache helper. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// Dashboard returns the headline counters.
func (s *Service) Dashboard(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats
	err := s.cached(ctx, keyDashboard(), &stats, func(ctx context.Context) (any, error) {
		return s.repo.DashboardStats(ctx, s.now().Add(-activeUserWindow))
	})
	return stats, err
}

// RecentIncidents lists the newest incidents. Not cached.
func (s *Service) RecentIncidents(ctx context.Context) ([]RecentIncident, error) {
	return s.repo.RecentIncidents(ctx, recentIncidents)
}

// Report aggregates the last days days of incidents and signups.
func (s *Service) Report(ctx context.Context, days int) (Report, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	var report Report
	err := s.cached(ctx, keyReport(days), &report, func(ctx context.Context) (any, error) {
		now := s.now()
		since := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
		incidents, err := s.repo.IncidentsSince(ctx, since)
		if err != nil {
			return nil, err
		}
		signups, err := s.repo.SignupsSince(ctx, since)
		if err != nil {
			return nil, err
		}
		return Aggregate(days, now, incidents, signups), nil
	})
	return report, err
}

// Warm fills the report cache for one window.
func (s *Service) Warm(ctx context.Context, days int) error {
	_, err := s.Report(ctx, days)
	return err
}

// Invalidate drops every cached aggregate.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) cached(ctx context.Context, base string, dest any, loader func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, base)
	if err != nil {
		return fmt.Errorf("analytics: cache key: %w", err)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var raw json.RawMessage
		if err := s.cache.FetchJSON(ctx, key, &raw, loader); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return fmt.Errorf("analytics: load %s: %w", base, err)
	}
	return json.Unmarshal(v.(json.RawMessage), dest)
}
