package web

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Server holds the HTTP server and its dependencies, adapted from the
// teacher's Server (chat/agent/command handlers over one template-rendered
// page) to the session-oriented surface of spec.md §6.
type Server struct {
	mux            *http.ServeMux
	sessionHandler *SessionHandler
	healthHandler  *HealthHandler
}

// NewServer creates a web server around the given handlers.
func NewServer(sessionHandler *SessionHandler, healthInfo HealthInfo) *Server {
	s := &Server{
		mux:            http.NewServeMux(),
		sessionHandler: sessionHandler,
		healthHandler:  NewHealthHandler(healthInfo),
	}
	s.registerRoutes()
	return s
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/sessions", s.sessionHandler.HandleCreate)
	s.mux.HandleFunc("GET /api/sessions/{id}/stream", s.sessionHandler.HandleStream)
	s.mux.HandleFunc("POST /api/sessions/{id}/control", s.sessionHandler.HandleControl)
	s.mux.HandleFunc("GET /api/health", s.healthHandler.ServeHTTP)
}

// Start begins listening on the configured port with graceful shutdown.
// On SIGINT/SIGTERM, it waits up to 10s for in-flight requests (a stream
// reader mid-SSE, say) to complete before returning.
func (s *Server) Start() error {
	port := os.Getenv("WEB_PORT")
	if port == "" {
		port = "8080"
	}
	host := os.Getenv("WEB_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	addr := host + ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("received signal %v, shutting down gracefully...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown error: %v", err)
		}
	}()

	log.Printf("orchestrator listening on http://%s", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
