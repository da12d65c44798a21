package mediapipe

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/queue"
)

// ImportPayload is the queued body of an import job. Each job maps to
// exactly one artifact.
type ImportPayload struct {
	ArtifactID    uuid.UUID    `json:"artifact_id"`
	SourceURL     string       `json:"source_url"`
	Kind          ArtifactKind `json:"kind"`
	CorrelationID string       `json:"correlation_id,omitempty"`
}

// ComposePayload is the queued body of a composition render job.
type ComposePayload struct {
	CompositionID uuid.UUID `json:"composition_id"`
}

// ImportJobID returns the deterministic job id for an artifact import.
// A second import request for the same artifact while one is in flight
// collides on this id and is coalesced, never processed concurrently.
func ImportJobID(artifactID uuid.UUID) string {
	return fmt.Sprintf("import:%s", artifactID)
}

// ComposeJobID returns the deterministic job id for a composition render.
func ComposeJobID(compositionID uuid.UUID) string {
	return fmt.Sprintf("compose:%s", compositionID)
}

// CompositionOutputID derives the output artifact id from the
// composition id, so redelivered render jobs converge on one record and
// one set of storage keys.
func CompositionOutputID(compositionID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(compositionID, []byte("composition-output"))
}

// ImportJobKind maps an artifact kind to its queue job kind. Audio
// shares the video import path since both go through the transcoding
// pipeline.
func ImportJobKind(kind ArtifactKind) string {
	if kind == KindImage {
		return queue.KindImportImage
	}
	return queue.KindImportVideo
}
