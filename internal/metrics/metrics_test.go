package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBooking_ObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBooking(reg)

	m.ObserveOperation("book", "ok")
	m.ObserveOperation("book", "ok")
	m.ObserveOperation("book", "conflict")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("book", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("book", "conflict")))
}

func TestBooking_Histograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBooking(reg)

	m.ObserveLockWait(10 * time.Millisecond)
	m.ObserveSlotsListed(6)

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBooking_NilIsNoop(t *testing.T) {
	var m *Booking
	assert.NotPanics(t, func() {
		m.ObserveOperation("book", "ok")
		m.ObserveLockWait(time.Second)
		m.ObserveSlotsListed(3)
	})
}
