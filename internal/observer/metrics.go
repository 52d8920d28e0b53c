package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for transition metrics
	transitionLabels = []string{"from", "to", "organization_id", "source"}
	denialLabels     = []string{"from", "to", "organization_id", "kind"}
	advanceLabels    = []string{"organization_id", "source"}

	// Transition counters
	TransitionsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_status_engine_transitions_applied_total",
			Help: "Total number of status transitions applied, including auto-chained hops.",
		},
		transitionLabels,
	)
	TransitionsDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_status_engine_transitions_denied_total",
			Help: "Total number of denied transition requests, labeled by denial kind.",
		},
		denialLabels,
	)

	// Histogram for the full advance call, transaction included
	AdvanceDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_status_engine_advance_duration_seconds",
			Help:    "Histogram of advanceLead durations including the chain loop and commit.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		advanceLabels,
	)

	// Histogram of how many hops an advance call applied
	ChainLength = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_status_engine_chain_length",
			Help:    "Histogram of transitions applied per advanceLead call.",
			Buckets: []float64{1, 2, 3},
		},
		advanceLabels,
	)
)

// Scheduler tick metrics
var (
	tickLabels       = []string{"organization_id"}
	tickResultLabels = []string{"organization_id", "result"}

	schedulerTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_status_engine_scheduler_ticks_total",
			Help: "Total number of scheduler ticks executed.",
		},
		tickLabels,
	)
	schedulerLeadsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_status_engine_scheduler_leads_processed_total",
			Help: "Total number of due leads processed by the scheduler, labeled by result.",
		},
		tickResultLabels,
	)
	schedulerTickDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_status_engine_scheduler_tick_duration_seconds",
			Help:    "Histogram of scheduler tick durations.",
			Buckets: prometheus.DefBuckets,
		},
		tickLabels,
	)
	schedulerQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lead_status_engine_scheduler_queue_length",
		Help: "Approximate number of tasks waiting in the scheduler worker pool queue.",
	})
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "organization_id", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_status_engine_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// Event publishing metrics
var (
	publishLabels = []string{"subject", "organization_id", "status"}

	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_status_engine_events_published_total",
			Help: "Total number of status-change events published, labeled by outcome.",
		},
		publishLabels,
	)
)

// InitMetrics initializes the Prometheus metrics if enabled.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// sanitizeTenant ensures the tenant label is valid or returns a default value.
func sanitizeTenant(tenant string) string {
	if tenant == "" {
		return "unknown"
	}
	return tenant
}

// IncTransitionApplied increments the applied-transition counter for one hop.
func IncTransitionApplied(from, to, organizationID, source string) {
	if !metricsEnabled {
		return
	}
	TransitionsAppliedTotal.WithLabelValues(from, to, sanitizeTenant(organizationID), source).Inc()
}

// IncTransitionDenied increments the denied-transition counter. Kind is one of
// not_allowed, no_rule, precondition, not_found, conflict.
func IncTransitionDenied(from, to, organizationID, kind string) {
	if !metricsEnabled {
		return
	}
	TransitionsDeniedTotal.WithLabelValues(from, to, sanitizeTenant(organizationID), kind).Inc()
}

// ObserveAdvanceDuration records the wall-clock time of one advanceLead call.
func ObserveAdvanceDuration(organizationID, source string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	AdvanceDurationSeconds.WithLabelValues(sanitizeTenant(organizationID), source).Observe(duration.Seconds())
}

// ObserveChainLength records how many transitions one advanceLead call applied.
func ObserveChainLength(organizationID, source string, length int) {
	if !metricsEnabled {
		return
	}
	ChainLength.WithLabelValues(sanitizeTenant(organizationID), source).Observe(float64(length))
}

// IncSchedulerTick increments the tick counter.
func IncSchedulerTick(organizationID string) {
	if !metricsEnabled {
		return
	}
	schedulerTicksTotal.WithLabelValues(sanitizeTenant(organizationID)).Inc()
}

// IncSchedulerLeadProcessed counts one due lead handled by a tick. Result is
// one of advanced, denied, error.
func IncSchedulerLeadProcessed(organizationID, result string) {
	if !metricsEnabled {
		return
	}
	schedulerLeadsProcessedTotal.WithLabelValues(sanitizeTenant(organizationID), result).Inc()
}

// ObserveSchedulerTickDuration records the duration of one full tick.
func ObserveSchedulerTickDuration(organizationID string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	schedulerTickDurationSeconds.WithLabelValues(sanitizeTenant(organizationID)).Observe(duration.Seconds())
}

// SetSchedulerQueueLength sets the current worker pool queue length.
func SetSchedulerQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	schedulerQueueLength.Set(float64(length))
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, organizationID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeTenant(organizationID), status).Observe(duration.Seconds())
}

// IncEventPublished counts one status-change event publish attempt.
func IncEventPublished(subject, organizationID string, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	eventsPublishedTotal.WithLabelValues(subject, sanitizeTenant(organizationID), status).Inc()
}
