package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()

	a.Ticks.Inc()
	a.ObserveIndicator(true)
	a.ObserveIndicator(false)
	a.ObserveIndicator(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Ticks))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.IndicatorRecompute.WithLabelValues("full")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.IndicatorRecompute.WithLabelValues("incremental")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Equity.Set(10250)
	m.Transitions.WithLabelValues("step").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "barreplay_equity 10250"))
	assert.True(t, strings.Contains(body, `barreplay_transitions_total{kind="step"} 1`))
}
