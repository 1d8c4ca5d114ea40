package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/config"
)

// Server represents the local HTTP API server
type Server struct {
	config      *config.Config
	logger      *logrus.Logger
	router      *mux.Router
	httpServer  *http.Server
	handlers    *Handlers
	rateLimiter *rateLimiter
}

// NewServer creates the API server over pre-built handlers
func NewServer(cfg *config.Config, logger *logrus.Logger, handlers *Handlers) *Server {
	server := &Server{
		config:   cfg,
		logger:   logger,
		router:   mux.NewRouter(),
		handlers: handlers,
	}

	if cfg.API.RateLimit > 0 {
		server.rateLimiter = newRateLimiter(cfg.API.RateLimit)
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      server.router,
		ReadTimeout:  time.Duration(cfg.API.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.API.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.API.IdleTimeout) * time.Second,
	}

	return server
}

// Handlers returns the server's handler set
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start runs the HTTP server until the context is canceled
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")

	s.handlers.wsManager.Start(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		return s.Shutdown()
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.handlers.wsManager.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Error during server shutdown")
		return err
	}

	s.logger.Info("API server shutdown complete")
	return nil
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.rateLimitMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	// Preflight requests are resolved entirely by the CORS middleware
	s.router.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health endpoint (no auth required)
	api.HandleFunc("/health", s.handlers.HealthCheck).Methods("GET")

	// Protected endpoints
	protected := api.PathPrefix("").Subrouter()
	protected.Use(s.authenticationMiddleware)

	// Capability endpoints
	protected.HandleFunc("/capabilities", s.handlers.GetCapabilities).Methods("GET")
	protected.HandleFunc("/capabilities/refresh", s.handlers.RefreshCapabilities).Methods("POST")

	// Playback decision endpoints
	protected.HandleFunc("/playback/analyze", s.handlers.AnalyzePlayback).Methods("POST")
	protected.HandleFunc("/playback/can-direct-play", s.handlers.CanDirectPlay).Methods("POST")

	// Gate endpoints
	protected.HandleFunc("/auth/unlock", s.handlers.Unlock).Methods("POST")
	protected.HandleFunc("/auth/capability", s.handlers.GateCapability).Methods("GET")

	// Credential endpoints
	protected.HandleFunc("/credentials", s.handlers.SaveCredential).Methods("POST")
	protected.HandleFunc("/credentials/lookup", s.handlers.LookupCredential).Methods("POST")
	protected.HandleFunc("/credentials", s.handlers.ClearCredential).Methods("DELETE")
	protected.HandleFunc("/credentials/all", s.handlers.ClearAllCredentials).Methods("DELETE")
	protected.HandleFunc("/credentials/rotate-key", s.handlers.RotateKey).Methods("POST")

	// WebSocket event stream
	protected.HandleFunc("/ws", s.handlers.WebSocketHandler).Methods("GET")
}
