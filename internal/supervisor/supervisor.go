// Package supervisor implements the Lifecycle Supervisor (spec §7/§8,
// component C10): process-wide scheduling, the healthcheck/metrics surface,
// signal handling, and the shutdown cleanup barrier. It is grounded on
// cmd/coordinator/main.go's signal.Notify-driven shutdown, generalized from
// a single SIGINT/SIGTERM-to-graceful-shutdown path into the spec's
// two-stage escalation: a first signal requests a graceful stop, a second
// forces immediate termination.
package supervisor

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/provider-daemon/internal/logging"
)

// Supervisor owns the daemon's root context and the healthcheck/metrics
// HTTP surface, and tracks every in-flight background task (Resource
// Watchers, the Reconciler loop, the Balance Sweeper) through a single
// cleanup barrier.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	wg     sync.WaitGroup
	server *http.Server
	logger *logging.Logger
}

// New builds a Supervisor with its own cancellable root context, serving
// /health and /metrics (scraping registry) on addr.
func New(logger *logging.Logger, registry *prometheus.Registry, addr string) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(map[string]any{"component": "supervisor"}),
	}
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Context is the daemon's root cancellation token; every background loop
// (Reconciler.Run, Sweeper.Run, watcher.Watcher.Run) is started against it.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

func (s *Supervisor) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Running"))
}

// Spawn runs fn as a tracked background task, counted against the
// shutdown cleanup barrier (spec §4.7: "the Supervisor waits for in-flight
// watchers on shutdown").
func (s *Supervisor) Spawn(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Run serves the /health and /metrics endpoints and blocks until a
// shutdown signal arrives, implementing the two-stage escalation: the
// first SIGINT/SIGTERM cancels the root context and waits (up to
// gracePeriod) for every Spawn'd task plus the HTTP server to drain,
// returning exit code 1; a second signal during that wait calls os.Exit(255)
// immediately.
func (s *Supervisor) Run(gracePeriod time.Duration) int {
	go func() {
		s.logger.Infof("health/metrics surface listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Errorf("health/metrics surface stopped unexpectedly")
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	s.logger.Infof("shutdown signal received, draining in-flight work")
	s.cancel()

	go func() {
		<-sigCh
		s.logger.Errorf("second shutdown signal received, forcing exit")
		os.Exit(255)
	}()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(gracePeriod):
		s.logger.Warnf("grace period elapsed before all background tasks drained")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warnf("health/metrics surface shutdown error")
	}

	return 1
}
