package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nasa_explorer"

// Metrics holds the Prometheus counters, histograms, and gauges for the game service.
type Metrics struct {
	// Game metrics.
	Assessments          *prometheus.CounterVec // labels: environment, level
	VisitsRecorded       prometheus.Counter
	VisitErrors          prometheus.Counter
	ExperienceAwarded    prometheus.Counter
	AchievementsUnlocked *prometheus.CounterVec // labels: achievement
	MissionsCompleted    prometheus.Counter

	// Event pipeline metrics.
	EventsQueued    prometheus.Counter
	EventsDropped   prometheus.Counter
	EventsPublished prometheus.Counter
	PublishErrors   prometheus.Counter
	PipelineRunning prometheus.Gauge
	BatchSize       prometheus.Histogram

	// NASA API metrics.
	NASARequests    *prometheus.CounterVec   // labels: api={apod,earth,cmr,donki}, outcome={success,error,rejected}
	NASACache       *prometheus.CounterVec   // labels: api, result={hit,miss}
	NASAAPIDuration *prometheus.HistogramVec // labels: api
	NASABreakerOpen prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Positions classified, by environment and game level.",
		}, []string{"environment", "level"}),
		VisitsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_recorded_total",
			Help:      "Location records persisted and folded into player stats.",
		}),
		VisitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visit_errors_total",
			Help:      "Visits that failed validation or persistence.",
		}),
		ExperienceAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "experience_awarded_total",
			Help:      "Total experience points awarded.",
		}),
		AchievementsUnlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_unlocked_total",
			Help:      "Achievements unlocked, by achievement id.",
		}, []string{"achievement"}),
		MissionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missions_completed_total",
			Help:      "Missions completed by players.",
		}),
		EventsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_queued_total",
			Help:      "Game events accepted by the event pipeline.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Game events dropped because the queue was full.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Game events written to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed batch writes to the sink topic.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the event pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_batch_size",
			Help:      "Number of game events per published batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		NASARequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nasa_requests_total",
			Help:      "NASA API requests by api and outcome.",
		}, []string{"api", "outcome"}),
		NASACache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nasa_cache_total",
			Help:      "NASA response cache lookups by api and result.",
		}, []string{"api", "result"}),
		NASAAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nasa_api_duration_seconds",
			Help:      "NASA API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"api"}),
		NASABreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nasa_circuit_open",
			Help:      "1 while the NASA circuit breaker rejects requests.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Assessments,
		m.VisitsRecorded,
		m.VisitErrors,
		m.ExperienceAwarded,
		m.AchievementsUnlocked,
		m.MissionsCompleted,
		m.EventsQueued,
		m.EventsDropped,
		m.EventsPublished,
		m.PublishErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.NASARequests,
		m.NASACache,
		m.NASAAPIDuration,
		m.NASABreakerOpen,
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
