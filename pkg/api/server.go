package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/pkg/api/docs"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// Ensure docs are initialized
var _ = docs.SwaggerInfo

const shutdownCtxTimeout = 10 * time.Second

// Server represents the API HTTP server.
type Server struct {
	config  *config.APIConfig
	handler *Handler
	server  *http.Server
	log     *logger.Logger
}

// NewServer creates a new API server.
func NewServer(cfg *config.APIConfig, ingestCfg config.IngestConfig, deps Deps, log *logger.Logger) *Server {
	handler := NewHandler(deps, ingestCfg, log)

	mux := http.NewServeMux()

	// Ingest webhook
	mux.HandleFunc("POST /api/v1/events", handler.IngestBatch)

	// Routing rule administration
	mux.HandleFunc("GET /api/v1/routing/rules", handler.ListRules)
	mux.HandleFunc("POST /api/v1/routing/rules", handler.CreateRule)
	mux.HandleFunc("GET /api/v1/routing/rules/{id}", handler.GetRule)
	mux.HandleFunc("DELETE /api/v1/routing/rules/{id}", handler.DeleteRule)
	mux.HandleFunc("POST /api/v1/routing/rules/{id}/enable", handler.EnableRule)
	mux.HandleFunc("POST /api/v1/routing/rules/{id}/disable", handler.DisableRule)
	mux.HandleFunc("GET /api/v1/routing/route-log", handler.RouteLog)

	// Invalidation rule administration
	mux.HandleFunc("GET /api/v1/invalidation/rules", handler.ListInvalidationRules)
	mux.HandleFunc("PUT /api/v1/invalidation/rules", handler.UpsertInvalidationRule)
	mux.HandleFunc("DELETE /api/v1/invalidation/rules/{kind}", handler.RemoveInvalidationRule)

	// Observability
	mux.HandleFunc("GET /api/v1/stats", handler.GetStats)
	mux.HandleFunc("GET /api/v1/stats/pipeline", handler.GetPipelineStats)
	mux.HandleFunc("GET /api/v1/stats/routing", handler.GetRoutingStats)
	mux.HandleFunc("GET /api/v1/stats/invalidation", handler.GetInvalidationStats)
	mux.HandleFunc("GET /api/v1/stats/notifications", handler.GetNotificationStats)
	mux.HandleFunc("GET /api/v1/stats/reorg", handler.GetReorgStats)
	mux.HandleFunc("GET /api/v1/stats/caches", handler.GetCacheStats)
	mux.HandleFunc("GET /api/v1/notifications", handler.ListNotifications)
	mux.HandleFunc("GET /api/v1/rollback-log", handler.RollbackLog)

	// Live delivery and health
	mux.HandleFunc("GET /api/v1/ws", handler.ServeWS)
	mux.HandleFunc("GET /health", handler.Health)

	if cfg.EnableSwagger {
		mux.Handle("GET /swagger/", httpSwagger.Handler(
			httpSwagger.URL(fmt.Sprintf("http://%s/swagger/doc.json", swaggerHost(cfg.ListenAddress))),
			httpSwagger.DeepLinking(true),
		))
	}

	// Apply middleware
	var h http.Handler = mux
	if cfg.RateLimit != nil {
		h = RateLimitMiddleware(cfg.RateLimit)(h)
	}
	h = RecoveryMiddleware(log)(h)
	h = LoggingMiddleware(log)(h)
	if cfg.CORS.Enabled {
		h = CORSMiddleware(cfg.CORS.AllowedOrigins)(h)
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
	}

	return &Server{
		config:  cfg,
		handler: handler,
		server:  httpServer,
		log:     log,
	}
}

// swaggerHost turns a listen address into something a browser can reach.
func swaggerHost(listenAddress string) string {
	if len(listenAddress) > 0 && listenAddress[0] == ':' {
		return "localhost" + listenAddress
	}

	return listenAddress
}

// Start runs the API server until ctx is canceled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API server is disabled")
		return nil
	}

	s.log.Infof("Starting API server on %s", s.config.ListenAddress)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("API server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownCtxTimeout)
	defer cancel()

	s.log.Info("Shutting down API server...")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown error: %w", err)
	}

	s.log.Info("API server stopped")
	return nil
}
