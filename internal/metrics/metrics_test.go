package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestManagerCounters(t *testing.T) {
	m := NewManager()

	m.ReportRun("shiny", "ok", 2*time.Second)
	m.ReportRun("shiny", "ok", time.Second)
	m.ReportRun("iv", "aborted", time.Second)
	m.MessageSent()
	m.MessageSent()
	m.SendFailed()
	m.MessageDeleted()
	m.DeleteFailed()
	m.AggregationFailed()
	m.TimerFired("Asia/Shanghai")

	if got := testutil.ToFloat64(m.runs.WithLabelValues("shiny", "ok")); got != 2 {
		t.Errorf("runs{shiny,ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("iv", "aborted")); got != 1 {
		t.Errorf("runs{iv,aborted} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.messagesSent); got != 2 {
		t.Errorf("messages sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.timerFires.WithLabelValues("Asia/Shanghai")); got != 1 {
		t.Errorf("timer fires = %v, want 1", got)
	}
}

func TestNilManagerIsNoop(t *testing.T) {
	var m *Manager
	m.ReportRun("shiny", "ok", time.Second)
	m.MessageSent()
	m.SendFailed()
	m.MessageDeleted()
	m.DeleteFailed()
	m.AggregationFailed()
	m.TimerFired("UTC")
	m.HTTPRequest("/health", "GET", 200, time.Millisecond)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewManager(WithNamespace("test"))
	m.MessageSent()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "test_reports_messages_sent_total 1") {
		t.Errorf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
