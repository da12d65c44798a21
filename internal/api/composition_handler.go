package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

// CompositionHandler handles HTTP requests for compositions
type CompositionHandler struct {
	svc mediapipe.Service
}

// NewCompositionHandler creates a new composition handler
func NewCompositionHandler(svc mediapipe.Service) *CompositionHandler {
	return &CompositionHandler{svc: svc}
}

// Routes returns the routes for compositions
func (h *CompositionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateComposition)
	r.Get("/{id}", h.GetComposition)
	r.Get("/{id}/download", h.GetDownload)

	return r
}

// CreateCompositionRequest is the request body for creating a composition
type CreateCompositionRequest struct {
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name,omitempty"`
	Timeline []struct {
		ArtifactID   string  `json:"artifact_id"`
		StartSeconds float64 `json:"start_seconds"`
		EndSeconds   float64 `json:"end_seconds,omitempty"`
	} `json:"timeline"`
	Output mediapipe.OutputSettings `json:"output"`
}

// CreateComposition validates a timeline and queues it for rendering
func (h *CompositionHandler) CreateComposition(w http.ResponseWriter, r *http.Request) {
	var req CreateCompositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		http.Error(w, "Invalid owner ID", http.StatusBadRequest)
		return
	}

	timeline := make([]mediapipe.Clip, 0, len(req.Timeline))
	for _, c := range req.Timeline {
		artifactID, err := uuid.Parse(c.ArtifactID)
		if err != nil {
			http.Error(w, "Invalid clip artifact ID", http.StatusBadRequest)
			return
		}
		timeline = append(timeline, mediapipe.Clip{
			ArtifactID:   artifactID,
			StartSeconds: c.StartSeconds,
			EndSeconds:   c.EndSeconds,
		})
	}

	receipt, err := h.svc.CreateComposition(r.Context(), mediapipe.CreateCompositionRequest{
		OwnerID:  ownerID,
		Name:     req.Name,
		Timeline: timeline,
		Output:   req.Output,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, receipt)
}

// GetComposition retrieves a composition by ID
func (h *CompositionHandler) GetComposition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid composition ID", http.StatusBadRequest)
		return
	}

	comp, err := h.svc.GetComposition(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	render.JSON(w, r, comp)
}

// GetDownload mints a signed URL for the rendered output
func (h *CompositionHandler) GetDownload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid composition ID", http.StatusBadRequest)
		return
	}

	link, err := h.svc.GetCompositionDownload(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	render.JSON(w, r, link)
}
