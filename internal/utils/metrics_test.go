package utils

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorCounters(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrementRequests()
	mc.IncrementRequests()
	mc.IncrementErrors()
	mc.RecordToggle("like", ToggleReverted)
	mc.RecordToggle("like", ToggleReverted)
	mc.RecordToggle("save", ToggleApplied)

	assert.Equal(t, 2.0, testutil.ToFloat64(mc.requests))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.errors))
	assert.Equal(t, 2.0, testutil.ToFloat64(mc.toggles.WithLabelValues("like", ToggleReverted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.toggles.WithLabelValues("save", ToggleApplied)))
}

func TestMetricsCollectorHandler(t *testing.T) {
	mc := NewMetricsCollector()
	mc.AddOperationLatency("FetchComments", 20*time.Millisecond)
	mc.RecordNotification("mention", "sent")

	rec := httptest.NewRecorder()
	mc.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `snapfeed_operation_duration_seconds_count{operation="FetchComments"} 1`)
	assert.Contains(t, string(body), `snapfeed_notify_notifications_total{result="sent",type="mention"} 1`)
}
