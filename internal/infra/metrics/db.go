package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns) }

// state: total|idle|in_use
var dbPoolConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ledger_db_pool_connections",
		Help: "Order ledger connection pool size by state.",
	},
	[]string{"state"},
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("in_use").Set(float64(inUse))
}
