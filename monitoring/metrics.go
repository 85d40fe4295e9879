package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservations_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Settlement transitions by transition and outcome",
		},
		[]string{"transition", "outcome"},
	)

	sweepDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sweep_due_orders",
			Help: "Pending orders past expiry found by the last sweep",
		},
	)

	sweepExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_expired_orders_total",
			Help: "Orders expired by the sweeper",
		},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of sweep ticks",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

func TrackReservation(outcome string) {
	reservations.WithLabelValues(outcome).Inc()
}

func TrackSettlement(transition, outcome string) {
	settlements.WithLabelValues(transition, outcome).Inc()
}

func TrackSweep(due, expired int, duration time.Duration) {
	sweepDue.Set(float64(due))
	sweepExpired.Add(float64(expired))
	sweepDuration.Observe(duration.Seconds())
}
