package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/camarigor/pool-hq/internal/collector"
	"github.com/camarigor/pool-hq/internal/config"
	"github.com/camarigor/pool-hq/internal/ratelimit"
	"github.com/camarigor/pool-hq/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	cfg       *config.Config
	storage   *storage.SQLiteStorage
	limiter   *ratelimit.Limiter
	collector *collector.Collector // nil when no proxy is configured
	hub       *WebSocketHub
	server    *http.Server
}

// NewServer creates a new API server. coll may be nil when the upstream
// proxy collection path is disabled.
func NewServer(cfg *config.Config, store *storage.SQLiteStorage, limiter *ratelimit.Limiter, coll *collector.Collector) *Server {
	return &Server{
		cfg:       cfg,
		storage:   store,
		limiter:   limiter,
		collector: coll,
		hub:       NewWebSocketHub(),
	}
}

// routes builds the chi router with all middleware and API endpoints.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Ingest
		r.Post("/contributions", s.handlePostContribution)

		// Read views
		r.Get("/workers", s.handleGetWorkers)
		r.Get("/workers/{workerID}", s.handleGetWorkerDetail)
		r.Get("/leaderboard", s.handleGetLeaderboard)
		r.Get("/stats", s.handleGetStats)

		// Bulk ingest from the mining proxy (cron-triggered)
		r.Post("/cron/snapshot", s.handleCronSnapshot)

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	// Start WebSocket hub
	go s.hub.Run()

	// Forward collector events to WebSocket clients
	if s.collector != nil {
		go s.forwardEvents()
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	log.Printf("Starting HTTP server on %s", addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	// Stop WebSocket hub
	s.hub.Stop()

	// Shutdown HTTP server
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// forwardEvents forwards collector snapshots to the WebSocket hub
func (s *Server) forwardEvents() {
	for snapshot := range s.collector.SnapshotChan {
		s.hub.Broadcast(Message{
			Type: "snapshot",
			Data: snapshot,
		})
	}
}

// GetHub returns the WebSocket hub for external access
func (s *Server) GetHub() *WebSocketHub {
	return s.hub
}
