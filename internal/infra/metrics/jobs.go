package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(backgroundJobsTotal) }

var backgroundJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_jobs_total",
		Help: "Background tasks run by the worker pool and reconciler, labeled by job and status.",
	},
	[]string{"job", "status"}, // status: ok|error|dropped
)

func IncJob(job, status string) {
	backgroundJobsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}
