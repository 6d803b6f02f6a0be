package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "courtbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome (created, conflict, taken, invalid).",
		},
		[]string{"outcome"},
	)

	slotConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Rejected slot selections by court.",
		},
		[]string{"court_id"},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Cancelled reservations by reason.",
		},
		[]string{"reason"},
	)

	voucherTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_transitions_total",
			Help:      "Voucher status changes by target status.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, reservations, slotConflicts, cancellations, voucherTransitions)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncReservation(outcome string) {
	reservations.WithLabelValues(outcome).Inc()
}

func IncConflict(courtID int64) {
	slotConflicts.WithLabelValues(strconv.FormatInt(courtID, 10)).Inc()
}

func IncCancellation(reason string) {
	cancellations.WithLabelValues(reason).Inc()
}

func IncVoucher(status string) {
	voucherTransitions.WithLabelValues(status).Inc()
}
