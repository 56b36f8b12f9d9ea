package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "tokengraph"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"
)

// Labels holds constant labels applied to all metrics. Useful when several
// crawls run side by side and need to be told apart in one Prometheus.
type Labels struct {
	Token       string // Token address being crawled
	Environment string // Deployment environment (e.g., "production", "staging")
}

// toPrometheusLabels converts Labels to prometheus.Labels, skipping empty
// values to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Token != "" {
		labels["token"] = l.Token
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	return labels
}

// Metrics exposes the crawl's observable state. All methods are nil-safe so
// components can run without metrics wired.
type Metrics struct {
	// Crawl state
	depth        prometheus.Gauge
	totalNodes   prometheus.Gauge
	treeSize     prometheus.Gauge
	frontierSize prometheus.Gauge

	// Step counters
	stepsResumed  prometheus.Counter
	stepsExpanded prometheus.Counter

	// API metrics
	apiCalls      *prometheus.CounterVec
	apiDuration   *prometheus.HistogramVec
	apiInFlight   prometheus.Gauge
	fetchFailures prometheus.Counter

	// Checkpoint metrics
	checkpointWrites prometheus.Counter
	checkpointLoads  prometheus.Counter
}

// New creates a Metrics instance and registers everything with the provided
// registerer. For constant labels (e.g., token address), use NewWithLabels.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a Metrics instance with constant labels applied to
// all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "depth",
			Help:      "Deepest resolved BFS depth of the crawl",
		}),
		totalNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "total_nodes",
			Help:      "Distinct addresses reachable from the crawl root",
		}),
		treeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "tree_size",
			Help:      "Structural node count of the crawl tree",
		}),
		frontierSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "frontier_size",
			Help:      "Number of addresses newly added at the latest depth",
		}),
		stepsResumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "steps_resumed_total",
			Help:      "Depths resolved by loading an existing checkpoint",
		}),
		stepsExpanded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "steps_expanded_total",
			Help:      "Depths resolved by fetching fresh transfer data",
		}),
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "api",
			Name:      "calls_total",
			Help:      "Total API calls by endpoint and status",
		}, []string{"endpoint", "status"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "api",
			Name:      "call_duration_seconds",
			Help:      "API call duration in seconds",
			Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		apiInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "api",
			Name:      "in_flight",
			Help:      "Number of API calls currently in progress",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetch_failures_total",
			Help:      "Transfer fetches downgraded to zero children after an API failure",
		}),
		checkpointWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "checkpoint_writes_total",
			Help:      "Checkpoints persisted",
		}),
		checkpointLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "checkpoint_loads_total",
			Help:      "Checkpoints loaded from the store",
		}),
	}

	err := errors.Join(
		reg.Register(m.depth),
		reg.Register(m.totalNodes),
		reg.Register(m.treeSize),
		reg.Register(m.frontierSize),
		reg.Register(m.stepsResumed),
		reg.Register(m.stepsExpanded),
		reg.Register(m.apiCalls),
		reg.Register(m.apiDuration),
		reg.Register(m.apiInFlight),
		reg.Register(m.fetchFailures),
		reg.Register(m.checkpointWrites),
		reg.Register(m.checkpointLoads),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// UpdateCrawlState updates the crawl state gauges after a resolved depth.
func (m *Metrics) UpdateCrawlState(depth, totalNodes, treeSize, frontierSize int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(depth))
	m.totalNodes.Set(float64(totalNodes))
	m.treeSize.Set(float64(treeSize))
	m.frontierSize.Set(float64(frontierSize))
}

// IncStepResumed records a depth resolved from an existing checkpoint.
func (m *Metrics) IncStepResumed() {
	if m == nil {
		return
	}
	m.stepsResumed.Inc()
}

// IncStepExpanded records a depth resolved by fresh expansion.
func (m *Metrics) IncStepExpanded() {
	if m == nil {
		return
	}
	m.stepsExpanded.Inc()
}

// RecordAPICall records an API call outcome.
func (m *Metrics) RecordAPICall(endpoint string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.apiCalls.WithLabelValues(endpoint, status).Inc()
	m.apiDuration.WithLabelValues(endpoint).Observe(durationSeconds)
}

// IncAPIInFlight increments the in-flight API call gauge.
func (m *Metrics) IncAPIInFlight() {
	if m == nil {
		return
	}
	m.apiInFlight.Inc()
}

// DecAPIInFlight decrements the in-flight API call gauge.
func (m *Metrics) DecAPIInFlight() {
	if m == nil {
		return
	}
	m.apiInFlight.Dec()
}

// IncFetchFailure records a transfer fetch that was absorbed as zero children.
func (m *Metrics) IncFetchFailure() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

// IncCheckpointWrite records a persisted checkpoint.
func (m *Metrics) IncCheckpointWrite() {
	if m == nil {
		return
	}
	m.checkpointWrites.Inc()
}

// IncCheckpointLoad records a checkpoint loaded from the store.
func (m *Metrics) IncCheckpointLoad() {
	if m == nil {
		return
	}
	m.checkpointLoads.Inc()
}
