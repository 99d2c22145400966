package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BotUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendbot", Name: "updates_total", Help: "Processed telegram updates",
	})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendbot", Name: "handler_errors_total", Help: "Handler errors",
	})
	APIRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendbot", Name: "api_request_seconds", Help: "Backend API latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	APIFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendbot", Name: "api_failures_total", Help: "Backend API soft failures",
	}, []string{"op"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendbot", Name: "db_ping_seconds", Help: "Session DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(BotUpdates, HandlerErrors, APIRequests, APIFailures, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveAPI(op string, d time.Duration, ok bool) {
	APIRequests.WithLabelValues(op).Observe(d.Seconds())
	if !ok {
		APIFailures.WithLabelValues(op).Inc()
	}
}

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
