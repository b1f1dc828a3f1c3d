package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestInstancesAreIndependent(t *testing.T) {
	a := New()
	b := New()

	a.ObserveAlert(OutcomeSent, "7_day")
	a.ObserveAlert(OutcomeSent, "7_day")
	b.ObserveAlert(OutcomeSent, "7_day")

	assert.Contains(t, scrape(t, a), `docradar_alerts_processed_total{alert_type="7_day",outcome="sent"} 2`)
	assert.Contains(t, scrape(t, b), `docradar_alerts_processed_total{alert_type="7_day",outcome="sent"} 1`)
}

func TestObserveTick(t *testing.T) {
	m := New()
	m.ObserveTick(50*time.Millisecond, nil)
	m.ObserveTick(time.Second, errors.New("db down"))

	out := scrape(t, m)
	assert.Contains(t, out, `docradar_ticks_total{result="ok"} 1`)
	assert.Contains(t, out, `docradar_ticks_total{result="error"} 1`)
	assert.Contains(t, out, "docradar_tick_duration_seconds_count 2")
	assert.Contains(t, out, "docradar_last_tick_timestamp_seconds")
}

func TestObserveSchedule(t *testing.T) {
	m := New()
	m.ObserveSchedule([]string{"7_day", "1_day", "expired"}, 2)

	out := scrape(t, m)
	assert.Contains(t, out, `docradar_alerts_scheduled_total{alert_type="1_day"} 1`)
	assert.Contains(t, out, "docradar_alerts_cancelled_total 2")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTick(time.Second, nil)
		m.ObserveAlert(OutcomeFailed, "1_day")
		m.ObserveEnqueue(time.Millisecond)
		m.ObserveSchedule([]string{"1_day"}, 1)
	})
}

func TestRuntimeCollectors(t *testing.T) {
	m := New()
	m.ObserveEnqueue(3 * time.Millisecond)

	out := scrape(t, m)
	assert.Contains(t, out, "go_goroutines")
	assert.Contains(t, out, "docradar_enqueue_duration_seconds_count 1")
}
