// Package web exposes the processing pipeline and query features over a
// JSON API.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/phajek/mediascan/internal/dupes"
	"github.com/phajek/mediascan/internal/index"
	"github.com/phajek/mediascan/internal/pipeline"
	"github.com/phajek/mediascan/internal/store"
)

// Server hosts the HTTP API.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	store        store.Store
	orchestrator *pipeline.Orchestrator
	grouper      *dupes.Grouper
	faceIndex    *index.FaceIndex // optional, nil disables similarity search
	jobs         *JobManager
}

// NewServer wires the API around the given collaborators. faceIndex may be
// nil; the similarity endpoint then responds 503.
func NewServer(addr string, st store.Store, orch *pipeline.Orchestrator, grouper *dupes.Grouper, faceIndex *index.FaceIndex) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:       r,
		store:        st,
		orchestrator: orch,
		grouper:      grouper,
		faceIndex:    faceIndex,
		jobs:         NewJobManager(),
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/scan", s.handleStartScan)
		r.Get("/scan/{id}", s.handleScanStatus)
		r.Delete("/scan/{id}", s.handleCancelScan)

		r.Get("/duplicates", s.handleDuplicates)
		r.Post("/faces/similar", s.handleSimilarFaces)
		r.Get("/stats", s.handleStats)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and cancels any running scan.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	s.jobs.CancelAll()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// refreshFaceIndex rebuilds the face index from stored faces. Called after a
// scan run that may have persisted new ones, so they are searchable without
// a restart.
func (s *Server) refreshFaceIndex(ctx context.Context) {
	if s.faceIndex == nil {
		return
	}

	faces, err := s.store.AllFaces(ctx)
	if err != nil {
		log.Printf("failed to load faces for index refresh: %v", err)
		return
	}
	if err := s.faceIndex.Build(faces); err != nil {
		log.Printf("failed to rebuild face index: %v", err)
	}
}
