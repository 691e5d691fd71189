package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor("lobby")

	m.SubscriberAdded()
	m.SubscriberAdded()
	m.SubscriberRemoved()
	m.EventPublished()
	m.SubscriberDropped()
	m.Transition("start")
	m.Transition("start")
	m.Rejected("session_full")
	m.SetPhase(3)
	m.ObserveLedger(5 * time.Millisecond)

	if got := testutil.ToFloat64(m.metrics.Subscribers); got != 1 {
		t.Errorf("Expected 1 subscriber, got %v", got)
	}
	if got := testutil.ToFloat64(m.metrics.Transitions.WithLabelValues("start")); got != 2 {
		t.Errorf("Expected 2 start transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.metrics.Rejections.WithLabelValues("session_full")); got != 1 {
		t.Errorf("Expected 1 session_full rejection, got %v", got)
	}
	if got := testutil.ToFloat64(m.metrics.Phase); got != 3 {
		t.Errorf("Expected phase 3, got %v", got)
	}
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("lobby")
	m.EventPublished()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"lobby_events_published_total 1", "lobby_uptime_seconds"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected metrics output to contain %q", name)
		}
	}
}

func TestNewMonitor_Twice(t *testing.T) {
	// Private registries mean a second monitor must not panic on duplicate registration.
	NewMonitor("lobby")
	NewMonitor("lobby")
}
