package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.FrameReceived()
	m.EnvelopesDecoded(3)
	m.DecodeError()
	m.MergeApplied()
	m.MergeRejected("missing_id")
	m.ChangeMarker("up")
	m.ReconnectScheduled()
	m.SetConnectionState("connected")
	m.SnapshotFetched("ok")
	m.SetMarketsTracked(10)
	m.HistoryWritten(5)
	m.HistoryFailed(1)
	m.HistoryDropped()

	if m.Registry() != nil {
		t.Error("Registry() on nil Metrics should be nil")
	}
}

func TestConnectionStateGauge(t *testing.T) {
	m := New()
	m.SetConnectionState("connecting")
	m.SetConnectionState("connected")

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	got := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "inplay_stream_connection_state" {
			continue
		}
		for _, metric := range f.GetMetric() {
			got[labelValue(metric, "state")] = metric.GetGauge().GetValue()
		}
	}

	want := map[string]float64{"disconnected": 0, "connecting": 0, "connected": 1, "closed": 0}
	for state, v := range want {
		if got[state] != v {
			t.Errorf("connection_state{state=%q} = %v, want %v", state, got[state], v)
		}
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.FrameReceived()
	m.FrameReceived()
	m.MergeRejected("missing_id")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	if !strings.Contains(text, "inplay_stream_frames_received_total 2") {
		t.Errorf("metrics output missing frames_received_total 2:\n%s", text)
	}
	if !strings.Contains(text, `inplay_markets_merges_rejected_total{reason="missing_id"} 1`) {
		t.Errorf("metrics output missing merges_rejected_total:\n%s", text)
	}
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}
