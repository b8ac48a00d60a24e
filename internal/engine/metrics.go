package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the Engine updates.
// A nil *Metrics disables instrumentation.
type Metrics struct {
	events         prometheus.Counter
	evaluations    *prometheus.CounterVec
	matches        *prometheus.CounterVec
	errors         *prometheus.CounterVec
	evalDuration   prometheus.Histogram
	registeredRule prometheus.Gauge
	queueDepth     prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them on reg.
// Returns nil if reg is nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "patex",
			Name:      "events_total",
			Help:      "Total events processed by the engine",
		}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patex",
			Name:      "evaluations_total",
			Help:      "Total rule evaluations performed",
		}, []string{"rule"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patex",
			Name:      "matches_total",
			Help:      "Total rule evaluations that matched",
		}, []string{"rule"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patex",
			Name:      "evaluation_errors_total",
			Help:      "Total rule evaluations that failed",
		}, []string{"rule"}),
		evalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "patex",
			Name:      "evaluation_seconds",
			Help:      "Time spent evaluating all rules for one event",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		registeredRule: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "patex",
			Name:      "registered_rules",
			Help:      "Number of rules registered with the engine",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "patex",
			Name:      "queue_depth",
			Help:      "Events waiting for the Run loop",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.events, m.evaluations, m.matches, m.errors, m.evalDuration, m.registeredRule, m.queueDepth,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) observeEvent(seconds float64) {
	if m == nil {
		return
	}
	m.events.Inc()
	m.evalDuration.Observe(seconds)
}

func (m *Metrics) observeEvaluation(rule string, matched bool, err error) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(rule).Inc()
	if err != nil {
		m.errors.WithLabelValues(rule).Inc()
		return
	}
	if matched {
		m.matches.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) setRules(n int) {
	if m == nil {
		return
	}
	m.registeredRule.Set(float64(n))
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
