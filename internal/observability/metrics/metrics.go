package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	CheckInsRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_checkins_recorded_total",
			Help: "Total number of liveness check-ins recorded.",
		},
		[]string{"service", "result"},
	)

	SweepRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_escalation_sweeps_total",
			Help: "Total number of escalation sweep runs.",
		},
	)

	SweepFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_escalation_failures_total",
			Help: "Total number of per-testator escalation failures.",
		},
	)

	VerificationRequestsOpenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_verification_requests_opened_total",
			Help: "Total number of verification requests opened.",
		},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_notifications_total",
			Help: "Total number of notification dispatch attempts.",
		},
		[]string{"service", "template", "result"},
	)

	UnlockStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_unlock_steps_total",
			Help: "Total number of unlock protocol step attempts.",
		},
		[]string{"service", "step", "result"},
	)

	ReleasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_releases_total",
			Help: "Total number of release packages materialized.",
		},
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName}).(*prometheus.HistogramVec)
	CheckInsRecordedTotal = CheckInsRecordedTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	NotificationsTotal = NotificationsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	UnlockStepsTotal = UnlockStepsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		CheckInsRecordedTotal,
		SweepRunsTotal,
		SweepFailuresTotal,
		VerificationRequestsOpenedTotal,
		NotificationsTotal,
		UnlockStepsTotal,
		ReleasesTotal,
	)
}
