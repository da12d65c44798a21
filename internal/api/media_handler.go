package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

// ImageProcessor runs an image import inline, bypassing the queue. The
// worker pipeline implements it; when absent, image imports go through
// the queue like everything else.
type ImageProcessor interface {
	ImportArtifact(ctx context.Context, payload mediapipe.ImportPayload) error
}

// MediaHandler handles HTTP requests for media artifacts
type MediaHandler struct {
	svc    mediapipe.Service
	images ImageProcessor
}

// NewMediaHandler creates a new media handler. images may be nil.
func NewMediaHandler(svc mediapipe.Service, images ImageProcessor) *MediaHandler {
	return &MediaHandler{svc: svc, images: images}
}

// Routes returns the routes for media artifacts
func (h *MediaHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/import-from-url", h.ImportFromURL)
	r.Get("/", h.ListArtifacts)
	r.Get("/{id}", h.GetArtifact)
	r.Delete("/{id}", h.DeleteArtifact)

	return r
}

// ImportFromURLRequest is the request body for importing remote media
type ImportFromURLRequest struct {
	OwnerID       string         `json:"owner_id"`
	Name          string         `json:"name,omitempty"`
	Kind          string         `json:"kind"`
	SourceURL     string         `json:"source_url"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	HighPriority  bool           `json:"high_priority,omitempty"`

	// Sync asks for inline processing; honored only for images and only
	// when the server runs with an in-process image pipeline.
	Sync bool `json:"sync,omitempty"`
}

// ImportFromURL accepts an import request and returns a receipt. The
// artifact reaches a terminal status asynchronously; clients follow it
// via GET /media/{id} or the event stream.
func (h *MediaHandler) ImportFromURL(w http.ResponseWriter, r *http.Request) {
	var req ImportFromURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		http.Error(w, "Invalid owner ID", http.StatusBadRequest)
		return
	}

	receipt, err := h.svc.RequestImport(r.Context(), mediapipe.ImportRequest{
		OwnerID:       ownerID,
		Name:          req.Name,
		Kind:          mediapipe.ArtifactKind(req.Kind),
		SourceURL:     req.SourceURL,
		CorrelationID: req.CorrelationID,
		Metadata:      req.Metadata,
		HighPriority:  req.HighPriority,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// Inline image path: process now and answer with the terminal state.
	// The queued copy of the job finds the artifact ready and skips.
	if req.Sync && req.Kind == string(mediapipe.KindImage) && h.images != nil {
		payload := mediapipe.ImportPayload{
			ArtifactID: receipt.ArtifactID,
			SourceURL:  req.SourceURL,
			Kind:       mediapipe.KindImage,
		}
		if err := h.images.ImportArtifact(r.Context(), payload); err != nil {
			writeError(w, err)
			return
		}
		details, err := h.svc.GetArtifactDetails(r.Context(), receipt.ArtifactID)
		if err != nil {
			writeError(w, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, details)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, receipt)
}

// GetArtifact retrieves an artifact with metadata and signed URLs
func (h *MediaHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid artifact ID", http.StatusBadRequest)
		return
	}

	details, err := h.svc.GetArtifactDetails(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	render.JSON(w, r, details)
}

// ListArtifacts lists artifacts by owner ID
func (h *MediaHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
	if err != nil {
		http.Error(w, "Invalid owner ID", http.StatusBadRequest)
		return
	}

	artifacts, err := h.svc.ListArtifacts(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if artifacts == nil {
		artifacts = []*mediapipe.MediaArtifact{}
	}

	render.JSON(w, r, artifacts)
}

// DeleteArtifact soft-deletes an artifact
func (h *MediaHandler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid artifact ID", http.StatusBadRequest)
		return
	}

	if err := h.svc.DeleteArtifact(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
