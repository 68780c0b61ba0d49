// Package metrics provides Prometheus instrumentation for the session
// engine. Each Metrics instance owns its registry so tests can create as
// many as they like; all recorder methods are nil-safe so components can
// run uninstrumented.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vox"

// Metrics holds every metric the engine records.
type Metrics struct {
	reg *prometheus.Registry

	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge

	FramesReceived     prometheus.Counter
	AudioBytesReceived prometheus.Counter
	FramesDropped      prometheus.Counter

	UtterancesTotal  prometheus.Counter
	UtterancesForced prometheus.Counter

	StageLatency *prometheus.HistogramVec
	StageErrors  *prometheus.CounterVec

	TurnsCompleted prometheus.Counter
	TurnsAborted   prometheus.Counter

	ReportEvents       prometheus.Counter
	ReportBatches      *prometheus.CounterVec
	ReportFlushErrors  prometheus.Counter
	ReportEventsDropped prometheus.Counter
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,

		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of device sessions created",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently live device sessions",
		}),

		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received from devices",
		}),
		AudioBytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received from devices",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Frames evicted from full audio buffers",
		}),

		UtterancesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Total sealed utterances",
		}),
		UtterancesForced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_forced_total",
			Help:      "Utterances sealed by the max-duration guard",
		}),

		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Capability call latency per pipeline stage",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),
		StageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Capability call failures per pipeline stage",
		}, []string{"stage"}),

		TurnsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_completed_total",
			Help:      "Turns that reached the sending-response state",
		}),
		TurnsAborted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_aborted_total",
			Help:      "Turns discarded by a barge-in abort",
		}),

		ReportEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_events_total",
			Help:      "Telemetry events submitted to the batcher",
		}),
		ReportBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_batches_total",
			Help:      "Telemetry batches flushed, by trigger",
		}, []string{"trigger"}),
		ReportFlushErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_flush_errors_total",
			Help:      "Failed batch flushes (batch dropped, telemetry is best-effort)",
		}),
		ReportEventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_events_dropped_total",
			Help:      "Telemetry events dropped by the queue cap",
		}),
	}
}

// Handler serves the registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// RecordSessionStart notes a new live session.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd notes a torn-down session.
func (m *Metrics) RecordSessionEnd() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// RecordFrame notes one inbound audio frame and any evictions it caused.
func (m *Metrics) RecordFrame(bytes, dropped int) {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
	m.AudioBytesReceived.Add(float64(bytes))
	if dropped > 0 {
		m.FramesDropped.Add(float64(dropped))
	}
}

// RecordUtterance notes a sealed utterance.
func (m *Metrics) RecordUtterance(forced bool) {
	if m == nil {
		return
	}
	m.UtterancesTotal.Inc()
	if forced {
		m.UtterancesForced.Inc()
	}
}

// ObserveStage records a capability call's latency and outcome.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

// RecordTurnCompleted notes a turn whose response was sent.
func (m *Metrics) RecordTurnCompleted() {
	if m == nil {
		return
	}
	m.TurnsCompleted.Inc()
}

// RecordTurnAborted notes a barge-in discard.
func (m *Metrics) RecordTurnAborted() {
	if m == nil {
		return
	}
	m.TurnsAborted.Inc()
}

// RecordReportEvent notes one event handed to the batcher.
func (m *Metrics) RecordReportEvent() {
	if m == nil {
		return
	}
	m.ReportEvents.Inc()
}

// RecordReportFlush notes one flushed batch and its trigger
// ("size", "timeout", "cap", "shutdown").
func (m *Metrics) RecordReportFlush(trigger string, err error) {
	if m == nil {
		return
	}
	m.ReportBatches.WithLabelValues(trigger).Inc()
	if err != nil {
		m.ReportFlushErrors.Inc()
	}
}

// RecordReportDropped notes events discarded by the queue cap.
func (m *Metrics) RecordReportDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReportEventsDropped.Add(float64(n))
}
