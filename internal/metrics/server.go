package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// How often the process-level gauges are refreshed while the server runs.
const systemSampleInterval = 15 * time.Second

// Server exposes the Prometheus scrape endpoint and keeps the runtime
// gauges fresh while it is up.
type Server struct {
	config *config.MetricsConfig
	log    *logger.Logger
	server *http.Server
	stopCh chan struct{}
}

// NewServer creates the metrics server. Nothing listens until Start.
func NewServer(cfg *config.MetricsConfig, log *logger.Logger) *Server {
	return &Server{
		config: cfg,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

// Start brings up the scrape endpoint and the runtime gauge sampler. It
// returns immediately; the server runs until Stop or context cancellation.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	s.server = &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.scrapeHandler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.sampleSystemMetrics(ctx)

	go func() {
		s.log.Infof("Metrics server listening on %s%s", s.config.ListenAddress, s.config.Path)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("Metrics server failed: %v", err)
		}
	}()

	return nil
}

// scrapeHandler serves the Prometheus registry under the configured path,
// plus a plain liveness probe.
func (s *Server) scrapeHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return mux
}

// Stop shuts the scrape endpoint down and stops the gauge sampler.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	close(s.stopCh)

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}

	return nil
}

func (s *Server) sampleSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(systemSampleInterval)
	defer ticker.Stop()

	UpdateSystemMetrics()

	for {
		select {
		case <-ticker.C:
			UpdateSystemMetrics()
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}
