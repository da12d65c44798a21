// Package api exposes the media pipeline over HTTP: ingress endpoints
// that accept work, read endpoints that report state and mint signed
// URLs, and an SSE stream for progress.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/notify"
)

// Server assembles the HTTP surface of the pipeline.
type Server struct {
	svc        mediapipe.Service
	subscriber notify.Subscriber
	images     ImageProcessor
}

// NewServer creates the HTTP server wiring. subscriber and images may be
// nil; the corresponding routes degrade gracefully.
func NewServer(svc mediapipe.Service, subscriber notify.Subscriber, images ImageProcessor) *Server {
	return &Server{svc: svc, subscriber: subscriber, images: images}
}

// Routes returns the full router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.Health)

	generations := NewGenerationHandler(s.svc)
	r.Mount("/media", NewMediaHandler(s.svc, s.images).Routes())
	r.Mount("/compositions", NewCompositionHandler(s.svc).Routes())
	r.Mount("/generations", generations.Routes())
	r.Post("/webhooks/generation-complete", generations.GenerationComplete)

	if s.subscriber != nil {
		r.Mount("/events", NewEventsHandler(s.subscriber).Routes())
	}

	return r
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}
