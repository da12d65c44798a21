package api

import (
	"errors"
	"net/http"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

// writeError maps pipeline errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mediapipe.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, mediapipe.ErrArtifactNotFound),
		errors.Is(err, mediapipe.ErrCompositionNotFound),
		errors.Is(err, mediapipe.ErrCorrelationNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, mediapipe.ErrArtifactDeleted):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, mediapipe.ErrArtifactNotReady):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, mediapipe.ErrCorrelationExists),
		errors.Is(err, mediapipe.ErrInvalidArtifactStatus),
		errors.Is(err, mediapipe.ErrInvalidCompositionStatus):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, mediapipe.ErrQueueUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
