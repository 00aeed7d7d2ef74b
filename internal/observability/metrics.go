package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsSubmitted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_negotiation", Name: "requests_submitted_total", Help: "Trip requests opened"})
	OffersGenerated   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_negotiation", Name: "offers_generated_total", Help: "Offers applied to open requests"})
	OffersAccepted    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_negotiation", Name: "offers_accepted_total", Help: "Offers accepted by passengers"})
	RequestsCancelled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_negotiation", Name: "requests_cancelled_total", Help: "Requests cancelled before acceptance"})
	TripsCompleted    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_negotiation", Name: "trips_completed_total", Help: "Trips run to completion"})
	RejectedIntents   = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_negotiation", Name: "rejected_intents_total", Help: "Intents rejected by the engine"},
		[]string{"reason"},
	)
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_negotiation", Name: "drivers_online", Help: "Number of online drivers"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_negotiation", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_negotiation",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
