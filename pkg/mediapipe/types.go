package mediapipe

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactKind classifies the media type of an artifact.
type ArtifactKind string

// Artifact kind constants (typed).
const (
	KindImage ArtifactKind = "image"
	KindVideo ArtifactKind = "video"
	KindAudio ArtifactKind = "audio"
)

// Valid reports whether k is a known artifact kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindAudio:
		return true
	}
	return false
}

// ArtifactStatus is the domain type for artifact lifecycle states.
type ArtifactStatus string

// Artifact status constants (typed).
const (
	ArtifactStatusPending   ArtifactStatus = "pending"
	ArtifactStatusUploading ArtifactStatus = "uploading"
	ArtifactStatusReady     ArtifactStatus = "ready"
	ArtifactStatusFailed    ArtifactStatus = "failed"
)

// CompositionStatus is the domain type for composition lifecycle states.
type CompositionStatus string

// Composition status constants (typed).
const (
	CompositionStatusPending    CompositionStatus = "pending"
	CompositionStatusQueued     CompositionStatus = "queued"
	CompositionStatusProcessing CompositionStatus = "processing"
	CompositionStatusCompleted  CompositionStatus = "completed"
	CompositionStatusFailed     CompositionStatus = "failed"
)

// Well-known keys in the free-form metadata extension map.
const (
	MetaSourceURL        = "source_url"
	MetaJobID            = "job_id"
	MetaCorrelationID    = "correlation_id"
	MetaError            = "error"
	MetaThumbnailError   = "thumbnail_error"
	MetaGenerationParams = "generation_params"
)

// MediaArtifact is the unit of durable media output: one stored object
// (image, video or audio) plus its lifecycle status and integrity fields.
//
// ObjectKey and Checksum are set only once an upload has succeeded; a
// ready artifact always carries both. ThumbnailKey is meaningful only
// for video and image kinds and may be empty even on ready artifacts
// (thumbnail generation is best-effort).
type MediaArtifact struct {
	ID           uuid.UUID      `json:"id"`
	OwnerID      uuid.UUID      `json:"owner_id"`
	Name         string         `json:"name,omitempty"`
	Kind         ArtifactKind   `json:"kind"`
	Status       ArtifactStatus `json:"status"`
	ObjectKey    string         `json:"object_key,omitempty"`
	ThumbnailKey string         `json:"thumbnail_key,omitempty"`
	Checksum     string         `json:"checksum,omitempty"`
	SizeBytes    int64          `json:"size_bytes,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
}

// ErrorNote returns the failure description recorded on a failed
// artifact, or "" when none is present.
func (a *MediaArtifact) ErrorNote() string {
	if a.Metadata == nil {
		return ""
	}
	if s, ok := a.Metadata[MetaError].(string); ok {
		return s
	}
	return ""
}

// VideoInfo holds technical metadata extracted from a video stream.
type VideoInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FrameRate       float64 `json:"frame_rate"`
	Codec           string  `json:"codec,omitempty"`
	BitRate         int64   `json:"bit_rate,omitempty"`
	Container       string  `json:"container,omitempty"`
}

// ImageInfo holds technical metadata for an image artifact.
type ImageInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format,omitempty"`
}

// AudioInfo holds technical metadata for an audio artifact.
type AudioInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Codec           string  `json:"codec,omitempty"`
	BitRate         int64   `json:"bit_rate,omitempty"`
	Container       string  `json:"container,omitempty"`
}

// ArtifactMetadata is the per-artifact metadata record. Exactly one of
// Video, Image or Audio is set, matching the artifact kind; Extra is a
// free-form extension map for provenance and error data so consumers of
// the typed fields never need to parse it.
type ArtifactMetadata struct {
	ArtifactID uuid.UUID      `json:"artifact_id"`
	FileName   string         `json:"file_name,omitempty"`
	MimeType   string         `json:"mime_type,omitempty"`
	SizeBytes  int64          `json:"size_bytes,omitempty"`
	Checksum   string         `json:"checksum,omitempty"`
	Video      *VideoInfo     `json:"video,omitempty"`
	Image      *ImageInfo     `json:"image,omitempty"`
	Audio      *AudioInfo     `json:"audio,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Clip references a time range of a ready artifact inside a composition
// timeline. EndSeconds <= 0 means "through the end of the clip".
type Clip struct {
	ArtifactID   uuid.UUID `json:"artifact_id"`
	StartSeconds float64   `json:"start_seconds"`
	EndSeconds   float64   `json:"end_seconds,omitempty"`
}

// OutputSettings describes the rendered output of a composition.
type OutputSettings struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate,omitempty"`
	Format    string  `json:"format,omitempty"`
}

// Composition tracks an ordered timeline of clip references and output
// settings. It is rendered by the same worker family as imports,
// consuming ready clip artifacts and producing one output MediaArtifact.
type Composition struct {
	ID               uuid.UUID         `json:"id"`
	OwnerID          uuid.UUID         `json:"owner_id"`
	Name             string            `json:"name,omitempty"`
	Status           CompositionStatus `json:"status"`
	Timeline         []Clip            `json:"timeline"`
	Output           OutputSettings    `json:"output"`
	OutputArtifactID *uuid.UUID        `json:"output_artifact_id,omitempty"`
	Progress         float64           `json:"progress,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	DeletedAt        *time.Time        `json:"deleted_at,omitempty"`
}

// ArtifactDetails is the read-side view of an artifact: the record plus
// freshly minted signed URLs. URLs are generated on read, never stored.
type ArtifactDetails struct {
	Artifact     *MediaArtifact    `json:"artifact"`
	Metadata     *ArtifactMetadata `json:"metadata,omitempty"`
	URL          string            `json:"url,omitempty"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
}

// DownloadLink is a time-limited signed read URL for a stored object.
type DownloadLink struct {
	URL       string    `json:"download_url"`
	ExpiresAt time.Time `json:"expires_at"`
}
