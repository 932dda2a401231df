package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inplay"

// Connection states reported by the connection_state gauge.
var connectionStates = []string{"disconnected", "connecting", "connected", "closed"}

// Metrics holds every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived   prometheus.Counter
	envelopesDecoded prometheus.Counter
	decodeErrors     prometheus.Counter
	mergesApplied    prometheus.Counter
	mergesRejected   *prometheus.CounterVec
	changeMarkers    *prometheus.CounterVec
	reconnects       prometheus.Counter
	connectionState  *prometheus.GaugeVec
	snapshotFetches  *prometheus.CounterVec
	marketsTracked   prometheus.Gauge
	historyWritten   prometheus.Counter
	historyFailed    prometheus.Counter
	historyDropped   prometheus.Counter
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "frames_received_total",
			Help: "WebSocket frames received.",
		}),
		envelopesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "envelopes_decoded_total",
			Help: "Market update envelopes decoded from frames.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "decode_errors_total",
			Help: "Frames or envelopes dropped because they could not be decoded.",
		}),
		mergesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "markets", Name: "merges_applied_total",
			Help: "Market updates merged into state.",
		}),
		mergesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "markets", Name: "merges_rejected_total",
			Help: "Market updates rejected before merge.",
		}, []string{"reason"}),
		changeMarkers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "markets", Name: "change_markers_total",
			Help: "Ladder price moves detected.",
		}, []string{"direction"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after a connection closed.",
		}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "stream", Name: "connection_state",
			Help: "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		snapshotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "snapshot", Name: "fetches_total",
			Help: "Snapshot fetch attempts by result.",
		}, []string{"result"}),
		marketsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "markets", Name: "tracked",
			Help: "Markets currently held in state.",
		}),
		historyWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "history", Name: "rows_written_total",
			Help: "Odds change rows written to the history store.",
		}),
		historyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "history", Name: "rows_failed_total",
			Help: "Odds change rows whose batch insert failed.",
		}),
		historyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "history", Name: "rows_dropped_total",
			Help: "Odds change rows dropped because the write buffer was full.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.framesReceived,
		m.envelopesDecoded,
		m.decodeErrors,
		m.mergesApplied,
		m.mergesRejected,
		m.changeMarkers,
		m.reconnects,
		m.connectionState,
		m.snapshotFetches,
		m.marketsTracked,
		m.historyWritten,
		m.historyFailed,
		m.historyDropped,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FrameReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *Metrics) EnvelopesDecoded(n int) {
	if m != nil {
		m.envelopesDecoded.Add(float64(n))
	}
}

func (m *Metrics) DecodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) MergeApplied() {
	if m != nil {
		m.mergesApplied.Inc()
	}
}

func (m *Metrics) MergeRejected(reason string) {
	if m != nil {
		m.mergesRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ChangeMarker(direction string) {
	if m != nil {
		m.changeMarkers.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) ReconnectScheduled() {
	if m != nil {
		m.reconnects.Inc()
	}
}

// SetConnectionState sets the gauge for state to 1 and every other state to 0.
func (m *Metrics) SetConnectionState(state string) {
	if m == nil {
		return
	}
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) SnapshotFetched(result string) {
	if m != nil {
		m.snapshotFetches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SetMarketsTracked(n int) {
	if m != nil {
		m.marketsTracked.Set(float64(n))
	}
}

func (m *Metrics) HistoryWritten(n int) {
	if m != nil {
		m.historyWritten.Add(float64(n))
	}
}

func (m *Metrics) HistoryFailed(n int) {
	if m != nil {
		m.historyFailed.Add(float64(n))
	}
}

func (m *Metrics) HistoryDropped() {
	if m != nil {
		m.historyDropped.Inc()
	}
}
