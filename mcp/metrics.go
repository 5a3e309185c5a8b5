package mcp

import (
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pkt.systems/pslog"
)

// facadeMetrics counts tool activity on a private registry. A nil receiver is
// a no-op so handlers never need to guard the calls.
type facadeMetrics struct {
	registry    *prometheus.Registry
	invocations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	truncations *prometheus.CounterVec
}

func newFacadeMetrics() *facadeMetrics {
	m := &facadeMetrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mongomcp",
			Name:      "tool_invocations_total",
			Help:      "Tool calls received, by tool name.",
		}, []string{"tool"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mongomcp",
			Name:      "tool_errors_total",
			Help:      "Tool calls that returned an error envelope, by tool name and error code.",
		}, []string{"tool", "code"}),
		truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mongomcp",
			Name:      "result_truncations_total",
			Help:      "Result sets cut short by a document or byte ceiling, by tool name and reason.",
		}, []string{"tool", "reason"}),
	}
	m.registry.MustRegister(m.invocations, m.failures, m.truncations)
	return m
}

func (m *facadeMetrics) toolInvoked(tool string) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(tool).Inc()
}

func (m *facadeMetrics) toolFailed(tool, code string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(tool, code).Inc()
}

func (m *facadeMetrics) resultTruncated(tool string, reason TruncationReason) {
	if m == nil || reason == TruncationNone {
		return
	}
	m.truncations.WithLabelValues(tool, string(reason)).Inc()
}

func (m *facadeMetrics) handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func startMetricsServer(addr string, handler http.Handler, logger pslog.Logger) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics.serve_error", "error", err)
		}
	}()
	return srv, ln, nil
}
