// Package metrics exposes Prometheus counters for backtest runs, the
// optimizer, the RPC server and report publishing.
package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantlink-statarb/pkg/logging"
)

const namespace = "statarb"

// Collector groups the metrics of one process. All methods are safe on a
// nil *Collector, so library code can run without metrics.
type Collector struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	TradesTotal      *prometheus.CounterVec
	OptimizerEvals   *prometheus.CounterVec
	RPCRequests      *prometheus.CounterVec
	ReportsPublished *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "runs_total", Help: "Backtest runs by outcome"},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one backtest run",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "trades_total", Help: "Simulated trades by direction"},
			[]string{"direction"},
		),
		OptimizerEvals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "optimizer_evaluations_total", Help: "Optimizer parameter sets evaluated"},
			[]string{"status"},
		),
		RPCRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "rpc_requests_total", Help: "RPC requests by method and status code"},
			[]string{"method", "code"},
		),
		ReportsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "reports_published_total", Help: "Reports published to NATS"},
			[]string{"status"},
		),
	}
	reg.MustRegister(c.RunsTotal, c.RunDuration, c.TradesTotal, c.OptimizerEvals, c.RPCRequests, c.ReportsPublished)
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveRun records the outcome and duration of one run.
func (c *Collector) ObserveRun(err error, d time.Duration) {
	if c == nil {
		return
	}
	c.RunsTotal.WithLabelValues(status(err)).Inc()
	c.RunDuration.Observe(d.Seconds())
}

// ObserveTrades adds n trades for direction.
func (c *Collector) ObserveTrades(direction string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.TradesTotal.WithLabelValues(direction).Add(float64(n))
}

// ObserveOptimizerEval counts one optimizer evaluation.
func (c *Collector) ObserveOptimizerEval(err error) {
	if c == nil {
		return
	}
	c.OptimizerEvals.WithLabelValues(status(err)).Inc()
}

// ObserveRPC counts one RPC call.
func (c *Collector) ObserveRPC(method, code string) {
	if c == nil {
		return
	}
	c.RPCRequests.WithLabelValues(method, code).Inc()
}

// ObservePublish counts one report publish attempt.
func (c *Collector) ObservePublish(err error) {
	if c == nil {
		return
	}
	c.ReportsPublished.WithLabelValues(status(err)).Inc()
}

// Serve exposes gatherer on /metrics in the background.
// A nil gatherer serves prometheus.DefaultGatherer. The address is bound
// before Serve returns; later server errors are logged.
func Serve(addr string, gatherer prometheus.Gatherer, logger *logrus.Logger) (*http.Server, error) {
	handler := promhttp.Handler()
	if gatherer != nil {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	log := logging.WithComponent(logger, "Metrics")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server stopped: %v", err)
		}
	}()
	return srv, nil
}
