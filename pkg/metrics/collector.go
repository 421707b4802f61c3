// Package metrics exports routing telemetry to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/corpus"
)

// Collector owns a private registry so several collectors can coexist in
// one process (tests, embedded use).
type Collector struct {
	registry *prometheus.Registry

	decisionsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	confidence       *prometheus.HistogramVec

	oracleCallsTotal *prometheus.CounterVec
	oracleDuration   prometheus.Histogram

	handoffsTotal *prometheus.CounterVec

	feedbackTotal *prometheus.CounterVec
	promotedTotal prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a collector whose metric names are prefixed with
// namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.decisionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Total number of routing decisions",
		},
		[]string{"agent", "source"},
	)

	c.decisionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routing_duration_seconds",
			Help:      "Time to reach a routing decision",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	c.confidence = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routing_confidence",
			Help:      "Confidence of routing decisions",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
		[]string{"source"},
	)

	c.oracleCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_calls_total",
			Help:      "Classifier oracle calls by outcome",
		},
		[]string{"outcome"},
	)

	c.oracleDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_duration_seconds",
			Help:      "Classifier oracle call duration",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	c.handoffsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Handoff decisions and executions by outcome",
		},
		[]string{"outcome"},
	)

	c.feedbackTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Submitted feedback entries by type",
		},
		[]string{"type"},
	)

	c.promotedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_promoted_total",
			Help:      "Feedback entries promoted into the example corpus",
		},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	return c
}

// ObserveDecision records a routing decision.
func (c *Collector) ObserveDecision(d agent.RoutingDecision, elapsed time.Duration) {
	src := string(d.Source)
	c.decisionsTotal.WithLabelValues(d.TargetAgent.String(), src).Inc()
	c.decisionDuration.WithLabelValues(src).Observe(elapsed.Seconds())
	c.confidence.WithLabelValues(src).Observe(d.Confidence)
}

// ObserveOracleCall records one classifier call.
func (c *Collector) ObserveOracleCall(outcome string, elapsed time.Duration) {
	c.oracleCallsTotal.WithLabelValues(outcome).Inc()
	c.oracleDuration.Observe(elapsed.Seconds())
}

// ObserveHandoff records a handoff outcome.
func (c *Collector) ObserveHandoff(outcome string) {
	c.handoffsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFeedback records a submitted feedback entry.
func (c *Collector) ObserveFeedback(t agent.FeedbackType) {
	c.feedbackTotal.WithLabelValues(string(t)).Inc()
}

// ObservePromoted records promoted feedback entries.
func (c *Collector) ObservePromoted(n int) {
	c.promotedTotal.Add(float64(n))
}

// RecordHTTPRequest records one served request. route is the matched
// pattern, not the raw path.
func (c *Collector) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// WatchCorpus exports the published snapshot's version and size.
func (c *Collector) WatchCorpus(namespace string, src *corpus.Corpus) {
	factory := promauto.With(c.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "corpus_version",
		Help:      "Version of the published example corpus",
	}, func() float64 {
		if s := src.Current(); s != nil {
			return float64(s.Version())
		}
		return 0
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "corpus_examples",
		Help:      "Embedded examples in the published corpus",
	}, func() float64 {
		if s := src.Current(); s != nil {
			return float64(s.Embedded())
		}
		return 0
	})
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
