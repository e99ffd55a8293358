package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiobook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiobook",
			Name:      "gateway_requests_total",
			Help:      "Scheduling-backend calls by endpoint and HTTP status.",
		},
		[]string{"endpoint", "status"},
	)

	sagaOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiobook",
			Name:      "saga_total",
			Help:      "Booking sagas by terminal outcome.",
		},
		[]string{"outcome"},
	)

	orphanedBookings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "studiobook",
			Name:      "orphaned_unpaid_bookings_total",
			Help:      "Bookings created whose deposit charge then failed.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, gatewayRequests, sagaOutcomes, orphanedBookings)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncGateway increments the backend-call counter. A zero status means the
// call never produced a response.
func IncGateway(endpoint string, status int) {
	gatewayRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// IncSaga increments the saga outcome counter ("completed" or the failed
// step name).
func IncSaga(outcome string) {
	sagaOutcomes.WithLabelValues(outcome).Inc()
}

// IncOrphanedBooking counts a booking left unpaid by a failed charge.
func IncOrphanedBooking() {
	orphanedBookings.Inc()
}
