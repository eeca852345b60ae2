// Package api provides HTTP handlers and routing for the orchestrator service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP handlers and router.
type Server struct {
	router     *mux.Router
	handlers   *Handlers
	middleware []mux.MiddlewareFunc
}

// NewServer creates a new API server. Extra middleware (auth, rate limiting)
// runs after the built-in CORS/logging/recovery chain.
func NewServer(h *Handlers, extra ...mux.MiddlewareFunc) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		handlers:   h,
		middleware: extra,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Health and observability endpoints
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/healthz", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/ready", s.handlers.Ready).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Execution management
	api.HandleFunc("/executions", s.handlers.Submit).Methods("POST")
	api.HandleFunc("/executions", s.handlers.ListExecutions).Methods("GET")
	api.HandleFunc("/executions/{id}", s.handlers.GetExecution).Methods("GET")
	api.HandleFunc("/executions/{id}/cancel", s.handlers.CancelExecution).Methods("POST")
	api.HandleFunc("/executions/{id}/pause", s.handlers.PauseExecution).Methods("POST")
	api.HandleFunc("/executions/{id}/resume", s.handlers.ResumeExecution).Methods("POST")
	api.HandleFunc("/executions/{id}/events", s.handlers.StreamEvents).Methods("GET")

	// Checkpoints and audit trail
	api.HandleFunc("/executions/{id}/checkpoints", s.handlers.ListCheckpoints).Methods("GET")
	api.HandleFunc("/executions/{id}/checkpoints/{cpid}", s.handlers.GetCheckpoint).Methods("GET")
	api.HandleFunc("/executions/{id}/audit", s.handlers.ListAudit).Methods("GET")

	// Pipeline validation and handler registry
	api.HandleFunc("/pipelines/validate", s.handlers.Validate).Methods("POST")
	api.HandleFunc("/handlers", s.handlers.ListHandlers).Methods("GET")

	// Store diagnostics
	api.HandleFunc("/store/info", s.handlers.StoreInfo).Methods("GET")
	api.HandleFunc("/store/selfcheck", s.handlers.StoreSelfCheck).Methods("GET")

	// Apply middleware
	s.router.Use(s.handlers.CORSMiddleware)
	s.router.Use(s.handlers.LoggingMiddleware)
	s.router.Use(s.handlers.RecoveryMiddleware)
	for _, m := range s.middleware {
		s.router.Use(m)
	}
}
