package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/notify"
)

const eventsHeartbeat = 15 * time.Second

// EventsHandler streams progress events over Server-Sent Events.
// Delivery is best-effort; clients that reconnect re-read the current
// state from the regular endpoints.
type EventsHandler struct {
	subscriber notify.Subscriber
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(subscriber notify.Subscriber) *EventsHandler {
	return &EventsHandler{subscriber: subscriber}
}

// Routes returns the routes for event streaming
func (h *EventsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.Stream)
	return r
}

// Stream subscribes to one subject's events and writes them until the
// client disconnects.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid subject ID", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel, err := h.subscriber.Subscribe(r.Context(), id.String())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(eventsHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
