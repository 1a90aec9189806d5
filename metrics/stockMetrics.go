package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bloodstock"

var (
	allocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "allocations_total",
		Help:      "Stock allocations by operation and outcome.",
	}, []string{"operation", "outcome"})

	allocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "allocation_duration_seconds",
		Help:      "Time spent in a stock allocation, including lock waits.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	unitsMovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "units_moved_ml_total",
		Help:      "Millilitres added or deducted, by blood group and direction.",
	}, []string{"blood_group", "direction"})

	stockDriftTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_drift_total",
		Help:      "Aggregates found out of line with their batches during reconciliation.",
	})
)

// ObserveAllocation records one allocation attempt. outcome is one of
// success, insufficient, lock_timeout or error.
func ObserveAllocation(operation, outcome string, started time.Time) {
	allocationsTotal.WithLabelValues(operation, outcome).Inc()
	allocationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func AddUnitsDeducted(bloodGroup string, ml int) {
	if ml > 0 {
		unitsMovedTotal.WithLabelValues(bloodGroup, "deducted").Add(float64(ml))
	}
}

func AddUnitsAdded(bloodGroup string, ml int) {
	if ml > 0 {
		unitsMovedTotal.WithLabelValues(bloodGroup, "added").Add(float64(ml))
	}
}

func AddStockDrift(n int) {
	if n > 0 {
		stockDriftTotal.Add(float64(n))
	}
}
