// Package server exposes the progress of the current mirror run over HTTP:
// Prometheus metrics on /metrics and a JSON stats snapshot on /stats.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bamsammich/s3mirror/internal/stats"
)

const shutdownTimeout = 5 * time.Second

// Run is the view of a mirror run the server reports on.
type Run interface {
	Stats() *stats.MirrorStats
	Outstanding() int64
}

// Server serves metrics for whichever run is currently tracked. Scheduled
// mode swaps in each new run with Track.
type Server struct {
	httpServer *http.Server
	registry   *prometheus.Registry
	current    atomic.Pointer[tracked]
	runs       atomic.Int64
}

type tracked struct {
	run       Run
	collector *stats.PrometheusCollector
}

// New creates a server listening on addr. Nothing is served until Start.
func New(addr string) *Server {
	s := &Server{registry: prometheus.NewRegistry()}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		runCollector{s},
	)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(newHTTPMetrics(s.registry).middleware)

	router.Get("/health/live", s.handleLive)
	router.Get("/stats", s.handleStats)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		Registry: s.registry,
	}))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
	return s
}

// Track makes r the run reported by /metrics and /stats.
func (s *Server) Track(r Run) {
	s.current.Store(&tracked{run: r, collector: stats.NewPrometheusCollector(r.Stats(), r.Outstanding)})
	s.runs.Add(1)
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Registry returns the registry backing /metrics.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Start listens on the configured address and serves until ctx is done, then
// shuts down gracefully. It returns once the listener is bound; serve errors
// are logged.
func (s *Server) Start(ctx context.Context) (net.Addr, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	go func() {
		slog.Info("metrics server started", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}()
	return ln.Addr(), nil
}

// runCollector delegates to the collector of the tracked run. Before the
// first run it describes the metrics but reports none.
type runCollector struct{ s *Server }

var describeOnly = stats.NewPrometheusCollector(stats.New(false), nil) //nolint:gochecknoglobals // static descriptors

func (c runCollector) Describe(ch chan<- *prometheus.Desc) {
	describeOnly.Describe(ch)
}

func (c runCollector) Collect(ch chan<- prometheus.Metric) {
	if t := c.s.current.Load(); t != nil {
		t.collector.Collect(ch)
	}
}
