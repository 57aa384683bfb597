package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("areas:warm").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("areas:warm").End(boom), boom)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("areas:warm", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("areas:warm", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("areas:warm")))
}

func TestViolationsResetAbsentRules(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	rules := []string{"level_depth", "sibling_prefix"}

	m.SetViolations(rules, map[string]int{"level_depth": 2, "sibling_prefix": 1})
	m.SetViolations(rules, map[string]int{"sibling_prefix": 4})

	assert.Equal(t, float64(0), testutil.ToFloat64(m.violations.WithLabelValues("level_depth")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.violations.WithLabelValues("sibling_prefix")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Track("x").End(nil))
	m.SetViolations([]string{"a"}, nil)
	m.SetWarmedAreas(1)
}
