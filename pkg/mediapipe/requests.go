package mediapipe

import "github.com/google/uuid"

// ImportRequest asks the pipeline to fetch a remote source and turn it
// into a durable artifact.
type ImportRequest struct {
	OwnerID       uuid.UUID
	Name          string
	Kind          ArtifactKind
	SourceURL     string
	CorrelationID string
	Metadata      map[string]any
	// HighPriority places the job on the critical queue.
	HighPriority bool
}

// ImportReceipt is the synchronous answer to an import request; the
// artifact reaches a terminal status asynchronously.
type ImportReceipt struct {
	ArtifactID uuid.UUID      `json:"artifact_id"`
	JobID      string         `json:"import_job_id"`
	Status     ArtifactStatus `json:"status"`
}

// RegisterGenerationRequest creates the placeholder artifact for an
// externally generated clip before its completion webhook arrives.
type RegisterGenerationRequest struct {
	CorrelationID    string
	OwnerID          uuid.UUID
	Name             string
	Kind             ArtifactKind
	GenerationParams map[string]any
}

// WebhookRequest is an inbound completion notification from a
// third-party generation provider.
type WebhookRequest struct {
	CorrelationID string
	ResultURL     string
	Status        string
}

// CreateCompositionRequest describes a timeline to render.
type CreateCompositionRequest struct {
	OwnerID  uuid.UUID
	Name     string
	Timeline []Clip
	Output   OutputSettings
}

// CompositionReceipt is the synchronous answer to a composition request.
type CompositionReceipt struct {
	CompositionID uuid.UUID         `json:"composition_id"`
	JobID         string            `json:"job_id"`
	Status        CompositionStatus `json:"status"`
}

// FinalizeImportRequest carries everything the worker learned about an
// artifact into the single atomic terminal write.
type FinalizeImportRequest struct {
	ArtifactID   uuid.UUID
	ObjectKey    string
	ThumbnailKey string
	Checksum     string
	SizeBytes    int64
	MimeType     string
	FileName     string
	Video        *VideoInfo
	Image        *ImageInfo
	Audio        *AudioInfo
	ThumbnailErr string
}
