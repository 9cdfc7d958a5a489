package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindloop_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindloop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindloop_cycles_total",
			Help: "Total number of decision cycles by outcome.",
		},
		[]string{"status"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mindloop_cycle_duration_seconds",
			Help:    "Decision cycle duration in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	LoopIteration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mindloop_loop_iteration",
			Help: "Current decision loop iteration.",
		},
	)

	ActionsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindloop_actions_dispatched_total",
			Help: "Total number of actions dispatched to handlers.",
		},
		[]string{"action"},
	)

	ParseIssuesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mindloop_decision_parse_issues_total",
			Help: "Total number of recovered decision parse issues.",
		},
	)

	ArchiveSweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindloop_archive_sweeps_total",
			Help: "Total number of archiving sweeps by outcome.",
		},
		[]string{"status"},
	)

	ArchivedRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mindloop_archived_records_total",
			Help: "Total number of memory records moved to the archive.",
		},
	)

	ActiveRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mindloop_active_records",
			Help: "Number of memory records in the active tier after the last sweep.",
		},
	)

	EffectorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindloop_effector_calls_total",
			Help: "Total number of effector calls by target and outcome.",
		},
		[]string{"target", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CyclesTotal,
		CycleDuration,
		LoopIteration,
		ActionsDispatchedTotal,
		ParseIssuesTotal,
		ArchiveSweepsTotal,
		ArchivedRecordsTotal,
		ActiveRecords,
		EffectorCallsTotal,
	)
}
