package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests can construct throwaway instances
// without collector name collisions.
type Metrics struct {
	reg *prometheus.Registry

	HTTPDuration         *prometheus.HistogramVec
	BookingsRequested    prometheus.Counter
	ApprovalsProcessed   *prometheus.CounterVec
	BookingsCancelled    prometheus.Counter
	NotificationsDropped prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		reg: reg,
		HTTPDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.3, 0.6, 1, 3, 6},
		}, []string{"method", "route", "status"}),
		BookingsRequested: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bookings_requested_total",
			Help: "Booking requests admitted (pending bookings created).",
		}),
		ApprovalsProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "approvals_processed_total",
			Help: "Approval passes by outcome (booked, failed, noop, retried, exhausted).",
		}, []string{"outcome"}),
		BookingsCancelled: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bookings_cancelled_total",
			Help: "Bookings successfully cancelled.",
		}),
		NotificationsDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Notification events that could not be published.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
