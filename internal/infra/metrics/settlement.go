package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		settlementPollsTotal,
		settlementActivePollers,
		settlementPollDuration,
	)
}

var (
	// result: pending|terminal|error|timeout
	settlementPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_polls_total",
			Help: "Status polls issued by settlement pollers, by outcome.",
		},
		[]string{"result"},
	)

	settlementActivePollers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "settlement_active_pollers",
			Help: "Number of payment orders currently being polled.",
		},
	)

	settlementPollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "settlement_poll_duration_seconds",
			Help:    "Latency of a single gateway status read.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

func IncSettlementPoll(result string) {
	settlementPollsTotal.WithLabelValues(norm(result)).Inc()
}

func PollerStarted() { settlementActivePollers.Inc() }
func PollerStopped() { settlementActivePollers.Dec() }

func ObservePollSeconds(s float64) { settlementPollDuration.Observe(s) }
