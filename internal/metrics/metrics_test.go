package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
	})

	before := testutil.ToFloat64(reservations.WithLabelValues("created"))
	IncReservation("created")
	assert.Equal(t, before+1, testutil.ToFloat64(reservations.WithLabelValues("created")))

	IncConflict(42)
	assert.GreaterOrEqual(t, testutil.ToFloat64(slotConflicts.WithLabelValues("42")), float64(1))

	IncCancellation("no_show")
	assert.GreaterOrEqual(t, testutil.ToFloat64(cancellations.WithLabelValues("no_show")), float64(1))

	IncVoucher("locked")
	assert.GreaterOrEqual(t, testutil.ToFloat64(voucherTransitions.WithLabelValues("locked")), float64(1))
}
