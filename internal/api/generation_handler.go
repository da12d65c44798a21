package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

// GenerationHandler handles externally generated media: registration of
// a pending generation and the provider's completion webhook.
type GenerationHandler struct {
	svc    mediapipe.Service
	logger *slog.Logger
}

// NewGenerationHandler creates a new generation handler
func NewGenerationHandler(svc mediapipe.Service) *GenerationHandler {
	return &GenerationHandler{svc: svc, logger: slog.Default()}
}

// Routes returns the routes for generation registration
func (h *GenerationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.RegisterGeneration)
	return r
}

// RegisterGenerationRequest is the request body for registering a
// pending external generation
type RegisterGenerationRequest struct {
	CorrelationID    string         `json:"correlation_id"`
	OwnerID          string         `json:"owner_id"`
	Name             string         `json:"name,omitempty"`
	Kind             string         `json:"kind,omitempty"`
	GenerationParams map[string]any `json:"generation_params,omitempty"`
}

// RegisterGeneration creates the placeholder artifact that the
// completion webhook will later resolve by correlation id.
func (h *GenerationHandler) RegisterGeneration(w http.ResponseWriter, r *http.Request) {
	var req RegisterGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		http.Error(w, "Invalid owner ID", http.StatusBadRequest)
		return
	}

	artifact, err := h.svc.RegisterGeneration(r.Context(), mediapipe.RegisterGenerationRequest{
		CorrelationID:    req.CorrelationID,
		OwnerID:          ownerID,
		Name:             req.Name,
		Kind:             mediapipe.ArtifactKind(req.Kind),
		GenerationParams: req.GenerationParams,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, artifact)
}

// WebhookRequest is the inbound completion notification body
type WebhookRequest struct {
	CorrelationID string `json:"correlation_id"`
	ResultURL     string `json:"result_url,omitempty"`
	Status        string `json:"status,omitempty"`
}

// WebhookAck acknowledges a webhook delivery whose downstream work could
// not be enqueued yet.
type WebhookAck struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
}

// GenerationComplete translates a provider completion webhook into an
// import job. Duplicate deliveries are acknowledged without re-enqueue,
// so providers can retry freely.
//
// Only validation failures (malformed body, unknown correlation id) are
// rejected. A backend failure after validation still answers 200: an
// error status would make the provider retry a delivery that the
// reconciliation sweep will recover anyway.
func (h *GenerationHandler) GenerationComplete(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := h.svc.HandleGenerationComplete(r.Context(), mediapipe.WebhookRequest{
		CorrelationID: req.CorrelationID,
		ResultURL:     req.ResultURL,
		Status:        req.Status,
	})
	if err != nil {
		if errors.Is(err, mediapipe.ErrInvalidRequest) {
			writeError(w, err)
			return
		}
		h.logger.Error("webhook accepted but downstream handling failed",
			"correlation_id", req.CorrelationID, "err", err)
		render.JSON(w, r, WebhookAck{CorrelationID: req.CorrelationID, Status: "accepted"})
		return
	}

	render.JSON(w, r, receipt)
}
