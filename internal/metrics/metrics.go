package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Booking collects counters for the booking engine. A nil *Booking is
// valid and records nothing.
type Booking struct {
	operations  *prometheus.CounterVec
	lockWait    prometheus.Histogram
	slotsListed prometheus.Histogram
}

func NewBooking(reg prometheus.Registerer) *Booking {
	m := &Booking{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Name:      "operations_total",
			Help:      "Booking engine operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduling",
			Name:      "slot_lock_wait_seconds",
			Help:      "Time spent waiting for a slot lock.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		slotsListed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduling",
			Name:      "slots_listed",
			Help:      "Number of free slots returned per availability query.",
			Buckets:   prometheus.LinearBuckets(0, 4, 8),
		}),
	}

	reg.MustRegister(m.operations, m.lockWait, m.slotsListed)
	return m
}

func (m *Booking) ObserveOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Booking) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Booking) ObserveSlotsListed(n int) {
	if m == nil {
		return
	}
	m.slotsListed.Observe(float64(n))
}
