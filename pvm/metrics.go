package pvm

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects runtime metrics for the process virtual machine.
//
// Metrics exposed (all namespaced with "procvm_"):
//
//  1. operations_total (counter): atomic operations run, by operation name.
//  2. activity_instances_started_total (counter): activity instances opened.
//  3. listener_failures_total (counter): listener errors, by event kind.
//  4. reentrancy_rejections_total (counter): step chains rejected because
//     their execution already had a chain in flight.
//  5. chain_steps (histogram): atomic operations per completed step chain.
//  6. chain_duration_seconds (histogram): wall time of completed step chains.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := pvm.NewPrometheusMetrics(registry)
//	engine, _ := pvm.New(pvm.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// All methods are safe on a nil receiver, so the engine calls them
// unconditionally.
type PrometheusMetrics struct {
	operations         *prometheus.CounterVec
	activityInstances  prometheus.Counter
	listenerFailures   *prometheus.CounterVec
	reentrancyRejected prometheus.Counter
	chainSteps         prometheus.Histogram
	chainDuration      prometheus.Histogram

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all metrics with registry.
// A nil registry means prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.operations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procvm",
		Name:      "operations_total",
		Help:      "Atomic operations executed by the trampoline",
	}, []string{"operation"})

	pm.activityInstances = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "procvm",
		Name:      "activity_instances_started_total",
		Help:      "Activity instances opened",
	})

	pm.listenerFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procvm",
		Name:      "listener_failures_total",
		Help:      "Listener errors that aborted a step chain",
	}, []string{"event"})

	pm.reentrancyRejected = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "procvm",
		Name:      "reentrancy_rejections_total",
		Help:      "Step chains rejected because the execution already had one in flight",
	})

	pm.chainSteps = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "procvm",
		Name:      "chain_steps",
		Help:      "Atomic operations per completed step chain",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10), // 1 to 262144
	})

	pm.chainDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "procvm",
		Name:      "chain_duration_seconds",
		Help:      "Wall time of completed step chains",
		Buckets:   prometheus.DefBuckets,
	})

	return pm
}

func (pm *PrometheusMetrics) active() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordOperation counts one atomic operation.
func (pm *PrometheusMetrics) RecordOperation(name string) {
	if !pm.active() {
		return
	}
	pm.operations.WithLabelValues(name).Inc()
}

// RecordActivityInstanceStart counts one opened activity instance.
func (pm *PrometheusMetrics) RecordActivityInstanceStart() {
	if !pm.active() {
		return
	}
	pm.activityInstances.Inc()
}

// RecordListenerFailure counts a listener error for the event kind.
func (pm *PrometheusMetrics) RecordListenerFailure(event string) {
	if !pm.active() {
		return
	}
	pm.listenerFailures.WithLabelValues(event).Inc()
}

// RecordReentrancyRejection counts a rejected step chain.
func (pm *PrometheusMetrics) RecordReentrancyRejection() {
	if !pm.active() {
		return
	}
	pm.reentrancyRejected.Inc()
}

// RecordChain observes a completed step chain.
func (pm *PrometheusMetrics) RecordChain(steps int, duration time.Duration) {
	if !pm.active() {
		return
	}
	pm.chainSteps.Observe(float64(steps))
	pm.chainDuration.Observe(duration.Seconds())
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
