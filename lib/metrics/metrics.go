// Package metrics defines the Prometheus collectors of the services and serves them.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Addr is where the metrics are served when a service is started with -m.
const Addr = ":9100"

const namespace = "luxhedge"

//nolint:gochecknoglobals // collectors are registered once
var (
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "api", Name: "requests_total", Help: "HTTP requests by route and code.",
	}, []string{"route", "code"})
	Latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "api", Name: "request_seconds", Help: "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "invest", Name: "transitions_total",
		Help: "Fund and withdrawal status changes.",
	}, []string{"entity", "status"})
	Blocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "watcher", Name: "blocks_total", Help: "Blocks scanned by network.",
	}, []string{"net"})
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "watcher", Name: "events_total", Help: "Deposit events sent by network.",
	}, []string{"net"})
	Mails = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "notifier", Name: "mails_total", Help: "Mails by kind and result.",
	}, []string{"kind", "result"})
)

// Serve starts serving the metrics API at Addr in the background.
func Serve(log *zap.Logger) *http.Server {
	h := http.NewServeMux()
	h.Handle("/metrics", promhttp.Handler())

	s := &http.Server{Addr: Addr, Handler: h, ReadHeaderTimeout: 5 * time.Second} //nolint:gomnd // seconds

	go func() {
		log.Info("serving metrics API", zap.String("addr", Addr))

		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics API", zap.Error(err))
		}
	}()

	return s
}
