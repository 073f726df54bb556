package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.SetSessionsActive(3)
	c.RecordSessionStarted()
	c.RecordSessionEnded("expired")
	c.RecordTick(0.01, false)
	c.RecordTick(0.02, true)
	c.RecordAlert("temperature_breach", "high")
	c.RecordDeliveries(5, 1)
	c.RecordNotification()

	require.Equal(t, 3.0, testutil.ToFloat64(c.sessionsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(c.sessionsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(c.sessionsEnded.WithLabelValues("expired")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.ticks))
	require.Equal(t, 1.0, testutil.ToFloat64(c.tickFailures))
	require.Equal(t, 1.0, testutil.ToFloat64(c.alerts.WithLabelValues("temperature_breach", "high")))
	require.Equal(t, 5.0, testutil.ToFloat64(c.deliveries))
	require.Equal(t, 1.0, testutil.ToFloat64(c.drops))
	require.Equal(t, 1.0, testutil.ToFloat64(c.notifications))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.SetSessionsActive(1)
		c.RecordSessionStarted()
		c.RecordSessionEnded("stopped")
		c.RecordTick(1, true)
		c.RecordAlert("x", "y")
		c.RecordDeliveries(1, 1)
		c.SetConnections(2)
		c.RecordNotification()
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.RecordSessionStarted()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	require.Contains(t, string(body), "livetrace_sessions_started_total 1")
}
