// Package metrics exposes the prometheus gauges and counters spec.md's
// Non-goals never exclude (only global clocks and cross-stream total
// ordering are excluded — observability is fair game, per SPEC_FULL.md
// §10.6). Grounded on kedacore-keda's pkg/metricscollector/prommetrics.go:
// package-level GaugeVec/CounterVec variables registered against a fixed
// namespace, with small recording functions instead of a struct wrapping
// the registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the prometheus metric namespace every gauge/counter below is
// registered under.
const Namespace = "whizbang"

var (
	liveInstances = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "live_instances",
		Help:      "Number of service instances the last Work Coordinator call observed as live.",
	})

	ownedPartitions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "owned_partitions",
		Help:      "Number of partitions this instance currently owns.",
	}, []string{"instance_id"})

	flushDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "client_flush_duration_seconds",
		Help:      "Duration of a single ProcessWorkBatch flush, from the client's perspective.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	workBatchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "work_batch_size",
		Help:      "Number of work items returned by a single ProcessWorkBatch call.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"kind"})

	flushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "client_flushes_total",
		Help:      "Total number of client flushes, by outcome.",
	}, []string{"outcome"})

	dispatchErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "client_dispatch_errors_total",
		Help:      "Total number of handler errors encountered while dispatching a WorkBatch.",
	}, []string{"kind"})
)

// Collectors returns every metric this package defines, for a host to pass
// to prometheus.Registry.MustRegister.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		liveInstances, ownedPartitions, flushDuration, workBatchSize, flushesTotal, dispatchErrorsTotal,
	}
}

// SetLiveInstances records the live instance count observed by a
// ProcessWorkBatch call.
func SetLiveInstances(n int) {
	liveInstances.Set(float64(n))
}

// SetOwnedPartitions records how many partitions instanceID currently owns.
func SetOwnedPartitions(instanceID string, n int) {
	ownedPartitions.WithLabelValues(instanceID).Set(float64(n))
}

// ObserveFlush records a client flush's duration and outcome ("ok" or
// "error").
func ObserveFlush(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	flushDuration.WithLabelValues(outcome).Observe(d.Seconds())
	flushesTotal.WithLabelValues(outcome).Inc()
}

// ObserveWorkBatch records how many outbox/inbox items a flush returned.
func ObserveWorkBatch(outboxCount, inboxCount int) {
	workBatchSize.WithLabelValues("outbox").Observe(float64(outboxCount))
	workBatchSize.WithLabelValues("inbox").Observe(float64(inboxCount))
}

// IncDispatchError records a handler error for the given work kind
// ("outbox" or "inbox").
func IncDispatchError(kind string) {
	dispatchErrorsTotal.WithLabelValues(kind).Inc()
}
