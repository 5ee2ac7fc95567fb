package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicgen_jobs_created_total",
		Help: "Generation jobs accepted, by entry point.",
	}, []string{"mode"}) // mode: sync, async

	JobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicgen_jobs_rejected_total",
		Help: "Generation requests rejected before a job was created.",
	}, []string{"reason"}) // reason: validation, duplicate

	JobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicgen_job_transitions_total",
		Help: "Job state transitions applied.",
	}, []string{"state"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "musicgen_job_duration_seconds",
		Help:    "Time from job creation to a terminal state.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 8),
	}, []string{"state"})

	StaleJobsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "musicgen_stale_jobs_reclaimed_total",
		Help: "Pending jobs force-failed by the stale sweep.",
	})

	FallbacksUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicgen_fallbacks_total",
		Help: "Timeout fallbacks attempted, by outcome.",
	}, []string{"outcome"})

	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicgen_provider_calls_total",
		Help: "Calls made through the resilience layer.",
	}, []string{"op", "outcome"}) // outcome: ok, error

	PollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "musicgen_poll_attempts",
		Help:    "Poll attempts needed per task.",
		Buckets: prometheus.LinearBuckets(1, 3, 15),
	})

	BreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "musicgen_breaker_open",
		Help: "1 while the provider circuit breaker is open.",
	})

	Migrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicgen_migrations_total",
		Help: "Durable storage migrations, by outcome.",
	}, []string{"outcome"})

	MigrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "musicgen_migration_duration_seconds",
		Help:    "Download plus upload time of durable storage migrations.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)

// ObserveProviderCall records one underlying provider call.
func ObserveProviderCall(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProviderCalls.WithLabelValues(op, outcome).Inc()
}

// ObserveBreaker tracks breaker state changes.
func ObserveBreaker(open bool) {
	if open {
		BreakerOpen.Set(1)
		return
	}
	BreakerOpen.Set(0)
}

// ObserveTransition counts a state transition and, for terminal states, the
// job's age.
func ObserveTransition(state string, terminal bool, createdAt time.Time) {
	JobTransitions.WithLabelValues(state).Inc()
	if terminal && !createdAt.IsZero() {
		JobDuration.WithLabelValues(state).Observe(time.Since(createdAt).Seconds())
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
