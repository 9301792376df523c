package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phajek/mediascan/internal/constants"
	"github.com/phajek/mediascan/internal/media"
	"github.com/phajek/mediascan/internal/pipeline"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type scanRequest struct {
	Stages    []string `json:"stages,omitempty"`
	ItemID    string   `json:"item_id,omitempty"`
	BatchSize int      `json:"batch_size,omitempty"`
	Force     bool     `json:"force,omitempty"`
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	if active := s.jobs.ActiveJob(); active != nil {
		respondError(w, http.StatusConflict, "a scan is already running: "+active.ID)
		return
	}

	stages := make([]pipeline.Stage, 0, len(req.Stages))
	for _, st := range req.Stages {
		stages = append(stages, pipeline.Stage(st))
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := s.jobs.CreateJob(uuid.NewString(), cancel)

	go func() {
		defer cancel()
		report, err := s.orchestrator.Run(ctx, pipeline.Options{
			Stages:    stages,
			ItemID:    req.ItemID,
			BatchSize: req.BatchSize,
			Force:     req.Force,
		})

		// Faces persisted by this run must be searchable before the job
		// reports a terminal status.
		if report != nil {
			s.refreshFaceIndex(context.Background())
		}

		switch {
		case errors.Is(err, pipeline.ErrAlreadyRunning):
			job.finish(JobStatusFailed, nil, err)
		case err != nil:
			job.finish(JobStatusFailed, report, err)
		case report.State == pipeline.StateCancelled:
			job.finish(JobStatusCancelled, report, nil)
		default:
			job.finish(JobStatusCompleted, report, nil)
		}
	}()

	respondJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.GetJob(chi.URLParam(r, "id"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := struct {
		ScanJobView
		Progress pipeline.Progress `json:"progress"`
	}{
		ScanJobView: job.Snapshot(),
		Progress:    s.orchestrator.LastProgress(),
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.GetJob(chi.URLParam(r, "id"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	job.Cancel()
	respondJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	hashes, err := s.store.ListHashes(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load hashes")
		return
	}

	items := make([]media.MediaItem, 0, len(hashes))
	for id, h := range hashes {
		hash := h
		items = append(items, media.MediaItem{ID: id, PerceptualHash: &hash})
	}

	groups := s.grouper.Group(items)
	respondJSON(w, http.StatusOK, map[string]any{
		"groups": groups,
		"count":  len(groups),
	})
}

type similarFacesRequest struct {
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit,omitempty"`
}

func (s *Server) handleSimilarFaces(w http.ResponseWriter, r *http.Request) {
	if s.faceIndex == nil {
		respondError(w, http.StatusServiceUnavailable, "face index not configured")
		return
	}

	var req similarFacesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Embedding) != constants.EmbeddingDim {
		respondError(w, http.StatusBadRequest, "embedding must have 128 dimensions")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	matches, err := s.faceIndex.Search(req.Embedding, limit)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "face index empty")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	hashes, err := s.store.ListHashes(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load hashes")
		return
	}
	faceCount, err := s.store.CountFaces(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count faces")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"hashed_items": len(hashes),
		"faces":        faceCount,
		"state":        s.orchestrator.State(),
	})
}
