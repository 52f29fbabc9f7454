package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"go.lipi.dev/providerd/probe"
)

// Metrics contains the prometheus metrics for the engine. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Probes       *prometheus.CounterVec
	ProbeLatency *prometheus.HistogramVec

	ScanDuration prometheus.Histogram
	Reselects    *prometheus.CounterVec
	Degradations *prometheus.CounterVec
	Failovers    prometheus.Counter

	Generation prometheus.Gauge
	State      *prometheus.GaugeVec
	Score      *prometheus.GaugeVec

	EventsDropped prometheus.Counter
}

// NewMetrics creates and registers the engine metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerd_probes_total",
				Help: "Probes by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),

		ProbeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "providerd_probe_duration_seconds",
				Help:    "Probe latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),

		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "providerd_scan_duration_seconds",
				Help:    "Duration of full scans in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		Reselects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerd_reselects_total",
				Help: "Full selection passes by trigger and result",
			},
			[]string{"trigger", "result"},
		),

		Degradations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerd_degradations_total",
				Help: "Degradations of the active endpoint detected by the monitor",
			},
			[]string{"endpoint"},
		),

		Failovers: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "providerd_failovers_total",
				Help: "Selections that switched from one endpoint to another",
			},
		),

		Generation: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "providerd_selection_generation",
				Help: "Generation of the current selection",
			},
		),

		State: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "providerd_state",
				Help: "Failover monitor state (1 for the current state)",
			},
			[]string{"state"},
		),

		Score: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "providerd_endpoint_score",
				Help: "Most recent score per endpoint (-1 when ineligible)",
			},
			[]string{"endpoint"},
		),

		EventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "providerd_events_dropped_total",
				Help: "Status events not delivered to slow subscribers",
			},
		),
	}

	reg.MustRegister(
		m.Probes,
		m.ProbeLatency,
		m.ScanDuration,
		m.Reselects,
		m.Degradations,
		m.Failovers,
		m.Generation,
		m.State,
		m.Score,
		m.EventsDropped,
	)

	return m
}

// TrackProbe records a probe result and the score computed from it
func (m *Metrics) TrackProbe(r probe.Result, score float64) {
	if m == nil {
		return
	}
	m.Probes.WithLabelValues(r.DescriptorID, string(r.Outcome)).Inc()
	m.ProbeLatency.WithLabelValues(r.DescriptorID).Observe(r.Latency.Seconds())
	m.Score.WithLabelValues(r.DescriptorID).Set(score)
}

func (m *Metrics) TrackState(s State) {
	if m == nil {
		return
	}
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.State.WithLabelValues(st.String()).Set(v)
	}
}

func (m *Metrics) TrackReselect(trigger Trigger, result string, seconds float64) {
	if m == nil {
		return
	}
	m.Reselects.WithLabelValues(string(trigger), result).Inc()
	if result != "cancelled" {
		m.ScanDuration.Observe(seconds)
	}
}

func (m *Metrics) TrackDegradation(endpoint string) {
	if m == nil {
		return
	}
	m.Degradations.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) TrackSelection(generation uint64, switched bool) {
	if m == nil {
		return
	}
	m.Generation.Set(float64(generation))
	if switched {
		m.Failovers.Inc()
	}
}

// ForgetEndpoint removes per endpoint series after a registry reload
func (m *Metrics) ForgetEndpoint(endpoint string) {
	if m == nil {
		return
	}
	m.Probes.DeletePartialMatch(prometheus.Labels{"endpoint": endpoint})
	m.ProbeLatency.DeleteLabelValues(endpoint)
	m.Score.DeleteLabelValues(endpoint)
	m.Degradations.DeleteLabelValues(endpoint)
}

func (m *Metrics) dropEvent() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}
