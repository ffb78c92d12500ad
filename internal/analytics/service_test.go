package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/safespora/safespora-admin/testing"
)

type mockRepo struct {
	stats      DashboardStats
	statsCalls atomic.Int32
	incidents  []IncidentPoint
	incCalls   atomic.Int32
	signups    []time.Time
	gate       chan struct{}
}

func (m *mockRepo) DashboardStats(context.Context, time.Time) (DashboardStats, error) {
	m.statsCalls.Add(1)
	return m.stats, nil
}

func (m *mockRepo) RecentIncidents(context.Context, int) ([]RecentIncident, error) {
	return nil, nil
}

func (m *mockRepo) IncidentsSince(context.Context, time.Time) ([]IncidentPoint, error) {
	m.incCalls.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	return m.incidents, nil
}

func (m *mockRepo) SignupsSince(context.Context, time.Time) ([]time.Time, error) {
	return m.signups, nil
}

var fixedNow = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, repo Repository) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(repo, NewCache(client, time.Minute), nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, mr
}

func TestDashboardCachesUntilBump(t *testing.T) {
	repo := &mockRepo{stats: DashboardStats{TotalUsers: 12, CriticalIncidents: 2}}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	stats, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, stats.TotalUsers)
	_, err = svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, repo.statsCalls.Load())

	require.NoError(t, svc.Invalidate(ctx))
	repo.stats.TotalUsers = 13
	stats, err = svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 13, stats.TotalUsers)
	assert.EqualValues(t, 2, repo.statsCalls.Load())
}

func TestReportConcurrentMissesShareOneLoad(t *testing.T) {
	repo := &mockRepo{
		incidents: []IncidentPoint{{CreatedAt: fixedNow, Category: "theft", Severity: "high", Status: "active"}},
		gate:      make(chan struct{}),
	}
	svc, _ := newTestService(t, repo)

	var wg sync.WaitGroup
	results := make([]Report, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.Report(context.Background(), 7)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	assert.EqualValues(t, 1, repo.incCalls.Load())
	for _, r := range results {
		assert.Equal(t, 1, r.TotalIncidents)
		assert.Len(t, r.IncidentsByDay, 7)
	}
}

func TestWarmFillsCache(t *testing.T) {
	repo := &mockRepo{}
	svc, mr := newTestService(t, repo)
	require.NoError(t, svc.Warm(context.Background(), 30))
	assert.True(t, mr.Exists("safespora:analytics:report:30:v1"))
}

func TestServiceWithoutCacheLoadsDirectly(t *testing.T) {
	repo := &mockRepo{stats: DashboardStats{TotalStaff: 4}}
	svc := NewService(repo, nil, nil)
	stats, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalStaff)
	require.NoError(t, svc.Invalidate(context.Background()))
}

func TestAggregateZeroFillsAndRanks(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 6, d, 9, 0, 0, 0, time.UTC) }
	incidents := []IncidentPoint{
		{CreatedAt: day(10), Category: "Theft", Severity: "high", Status: "active", Location: "Ikeja"},
		{CreatedAt: day(10), Category: "theft", Severity: "critical", Status: "resolved", Location: "Ikeja"},
		{CreatedAt: day(8), Category: "", Severity: "low", Status: "false_report", Location: "Yaba"},
		{CreatedAt: day(1), Category: "fire", Severity: "high", Status: "active", Location: "Lekki"},
	}
	signups := []time.Time{day(9), day(9), day(2)}

	r := Aggregate(3, fixedNow, incidents, signups)
	assert.Equal(t, 3, r.TotalIncidents)
	assert.Equal(t, 2, r.NewUsers)
	assert.Equal(t, []Bucket{{"2025-06-08", 1}, {"2025-06-09", 0}, {"2025-06-10", 2}}, r.IncidentsByDay)
	assert.Equal(t, []Bucket{{"2025-06-08", 0}, {"2025-06-09", 2}, {"2025-06-10", 0}}, r.UserGrowth)
	assert.Equal(t, []Bucket{{"theft", 2}, {"other", 1}}, r.ByCategory)
	assert.Equal(t, []Bucket{{"Ikeja", 2}, {"Yaba", 1}}, r.TopLocations)
	assert.Equal(t, time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), r.From)
}

func TestAggregateCapsLocations(t *testing.T) {
	var incidents []IncidentPoint
	for i := 0; i < 15; i++ {
		incidents = append(incidents, IncidentPoint{CreatedAt: fixedNow, Location: string(rune('A' + i))})
	}
	r := Aggregate(1, fixedNow, incidents, nil)
	assert.Len(t, r.TopLocations, 10)
	assert.Equal(t, "A", r.TopLocations[0].Label)
}

func TestRepositoryIncidentsSince(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT created_at, category, severity, status, location FROM alerts WHERE created_at >= \$1 ORDER BY created_at`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "category", "severity", "status", "location"}).
			AddRow(since, "theft", "high", "active", "Ikeja"))

	points, err := NewRepository(mock).IncidentsSince(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Ikeja", points[0].Location)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDashboardStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := fixedNow.Add(-activeUserWindow)
	mock.ExpectQuery(`SELECT \(SELECT COUNT\(\*\) FROM profiles p .*last_active_at >= \$1\) AS active_users, .* AS verified_staff`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{
			"total_users", "active_users", "total_incidents", "pending_incidents",
			"critical_incidents", "total_staff", "pending_verifications", "verified_staff",
		}).AddRow(10, 4, 7, 3, 1, 5, 2, 3))

	stats, err := NewRepository(mock).DashboardStats(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, DashboardStats{10, 4, 7, 3, 1, 5, 2, 3}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}
