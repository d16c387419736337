package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_scheduled_total",
			Help: "Total emails accepted for scheduling",
		},
	)

	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total failed emails",
		},
	)

	EmailsRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_rate_limited_total",
			Help: "Total sends deferred by the hourly sender limit",
		},
	)

	JobsReconciled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_reconciled_total",
			Help: "Total orphaned jobs re-enqueued by the reconciliation sweep",
		},
	)
)

func Init() {
	prometheus.MustRegister(EmailsScheduled)
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(EmailFailures)
	prometheus.MustRegister(EmailsRateLimited)
	prometheus.MustRegister(JobsReconciled)
}
