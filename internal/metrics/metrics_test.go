package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_EventCounters(t *testing.T) {
	m := New()

	m.Inc(EventDeliveryDropped)
	m.Inc(EventDeliveryDropped)
	m.Inc(EventSignalsRelayed)

	if got := testutil.ToFloat64(m.EventCounter(EventDeliveryDropped)); got != 2 {
		t.Fatalf("delivery_dropped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.EventCounter(EventSignalsRelayed)); got != 1 {
		t.Fatalf("signals_relayed = %v, want 1", got)
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(EventAuthFailure)
	m.ConnectionOpened()
	m.ConnectionClosed()
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ConnectionOpened()
	m.Inc(EventFramesBroadcast)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "signal_relay_connections 1") {
		t.Fatalf("missing connection gauge in exposition:\n%s", body)
	}
	if !strings.Contains(body, `signal_relay_events_total{event="frames_broadcast"} 1`) {
		t.Fatalf("missing event counter in exposition:\n%s", body)
	}
}
