package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"fluently-server/pkg/analysis"
	"fluently-server/pkg/metrics"
	"fluently-server/pkg/version"
)

// Config holds HTTP server settings.
type Config struct {
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	EnableMetrics bool
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:          8080,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
		EnableMetrics: true,
	}
}

// Server is the HTTP front for the analysis engine: REST API, WebSocket
// feedback streaming, health, and metrics.
type Server struct {
	config     *Config
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	handler    http.Handler
	analyzer   *analysis.Analyzer
	hub        *FeedbackHub
	startTime  time.Time
}

// NewServer builds the server and registers all endpoints.
func NewServer(logger *logrus.Logger, config *Config, analyzer *analysis.Analyzer, hub *FeedbackHub, publisher EventPublisher) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config:    config,
		logger:    logger,
		analyzer:  analyzer,
		hub:       hub,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	server.mux = mux

	server.handler = serverHeaderMiddleware(mux)

	handler := NewHandler(logger, analyzer, hub, publisher)
	handler.RegisterRoutes(mux)

	mux.HandleFunc("GET /health", server.healthHandler)

	if config.EnableMetrics {
		if registry := metrics.GetRegistry(); registry != nil {
			mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          registry,
			}))
			logger.Info("Prometheus metrics endpoint enabled at /metrics")
		}
	} else {
		logger.Info("Metrics endpoint disabled")
	}

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      server.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// serverHeaderMiddleware stamps every response with the server identity.
func serverHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", version.ServerHeader())
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start runs the HTTP listener in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.WithField("port", s.config.Port).Info("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness plus a few live counters.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":     "healthy",
		"version":    version.Version,
		"uptime":     time.Since(s.startTime).String(),
		"started_at": s.startTime.Format(time.RFC3339),
	}
	if s.analyzer != nil {
		body["active_sessions"] = s.analyzer.ActiveSessions()
		body["recent_analyses"] = s.analyzer.RecentAnalyses()
	}
	if s.hub != nil {
		body["websocket_connections"] = s.hub.ConnectionCount()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}
