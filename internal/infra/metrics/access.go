package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(accessDecisionsTotal) }

var accessDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "access_decisions_total",
		Help: "Access decisions by kind (account|module|list) and result (granted|free|denied|fail_closed).",
	},
	[]string{"kind", "result"},
)

func IncAccessDecision(kind, result string) {
	accessDecisionsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}
