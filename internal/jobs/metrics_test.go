package jobmetrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func find(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m
		}
	}
	return nil
}

func TestTrackerCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("mail:send").End(nil))
	require.Error(t, m.Track("mail:send").End(errors.New("smtp down")))
	require.Error(t, m.Track("mail:send").End(fmt.Errorf("bad payload: %w", asynq.SkipRetry)))

	for outcome, want := range map[string]float64{OutcomeSuccess: 1, OutcomeRetry: 1, OutcomeDropped: 1} {
		metric := find(t, reg, "safespora_jobs_total", map[string]string{"job": "mail:send", "outcome": outcome})
		require.NotNil(t, metric, outcome)
		assert.Equal(t, want, metric.GetCounter().GetValue(), outcome)
	}

	inFlight := find(t, reg, "safespora_jobs_in_flight", map[string]string{"job": "mail:send"})
	require.NotNil(t, inFlight)
	assert.Zero(t, inFlight.GetGauge().GetValue())

	last := find(t, reg, "safespora_job_last_success_timestamp_seconds", map[string]string{"job": "mail:send"})
	require.NotNil(t, last)
	assert.Positive(t, last.GetGauge().GetValue())
}

func TestInFlightWhileRunning(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	tracker := m.Track("analytics:warmup")

	metric := find(t, reg, "safespora_jobs_in_flight", map[string]string{"job": "analytics:warmup"})
	require.NotNil(t, metric)
	assert.Equal(t, float64(1), metric.GetGauge().GetValue())
	_ = tracker.End(nil)
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	want := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(want), want)
}

func TestUnregisteredMetricsAreUsable(t *testing.T) {
	m := NewMetrics(nil)
	assert.NoError(t, m.Track("x").End(nil))
}
