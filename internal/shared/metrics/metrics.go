package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trip_planner"

// Registry holds every collector exposed on /metrics.
var Registry = prometheus.NewRegistry()

var (
	TripsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trips_submitted_total",
		Help:      "Trip plans accepted and dispatched",
	})
	TripsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trips_finished_total",
		Help:      "Trip plans that reached a terminal status",
	}, []string{"status"})
	TripDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "trip_duration_seconds",
		Help:      "Wall time from dispatch to terminal status",
		Buckets:   []float64{5, 15, 30, 60, 90, 120, 180, 300, 600},
	})
	TripsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trips_running",
		Help:      "Trip plans currently executing",
	})
	QuotaRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_rejections_total",
		Help:      "Submissions refused by the quota ledger",
	}, []string{"limit"})
	ValidationRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validation_rejections_total",
		Help:      "Submissions refused by input validation",
	}, []string{"field", "rule"})
	StreamsOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "progress_streams_open",
		Help:      "Open progress streams",
	}, []string{"transport"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		TripsSubmitted,
		TripsFinished,
		TripDuration,
		TripsRunning,
		QuotaRejections,
		ValidationRejections,
		StreamsOpen,
	)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
	return gin.WrapH(h)
}
