package mediapipe

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for durable object storage backends.
// Writes are append/overwrite-only under deterministic keys, so repeated
// job attempts overwrite rather than duplicate.
type BlobStore interface {
	// Upload stores the bytes read from reader under params.ObjectKey
	Upload(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download streams the stored bytes for an object key
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes the object
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves storage-level metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)

	// GetDownloadURL mints a time-limited signed URL for downloading the object
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)

	// GetPreviewURL mints a time-limited signed URL for inline display
	GetPreviewURL(ctx context.Context, objectKey string) (string, error)
}

// ObjectMeta contains storage-level metadata about a stored object
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
	UpdatedAt   time.Time
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

// FinalizeArtifactParams is the single atomic terminal write for an
// artifact: status, location, integrity and metadata land together.
type FinalizeArtifactParams struct {
	ArtifactID   uuid.UUID
	Status       ArtifactStatus // ready or failed
	ObjectKey    string
	ThumbnailKey string
	Checksum     string
	SizeBytes    int64
	Metadata     *ArtifactMetadata
	ErrorNote    string
	ThumbnailErr string
}

// Repository defines the interface for artifact and composition persistence.
// It is the single source of truth for lifecycle status; it is mutated only
// by the worker holding the job's visibility lock (enforced by the queue,
// not by the repository).
type Repository interface {
	// Artifact operations
	CreateArtifact(ctx context.Context, artifact *MediaArtifact) error
	GetArtifact(ctx context.Context, id uuid.UUID) (*MediaArtifact, error)
	UpdateArtifact(ctx context.Context, artifact *MediaArtifact) error
	DeleteArtifact(ctx context.Context, id uuid.UUID) error
	ListArtifacts(ctx context.Context, ownerID uuid.UUID) ([]*MediaArtifact, error)
	FinalizeArtifact(ctx context.Context, params FinalizeArtifactParams) error

	// Artifact metadata operations
	SetArtifactMetadata(ctx context.Context, metadata *ArtifactMetadata) error
	GetArtifactMetadata(ctx context.Context, artifactID uuid.UUID) (*ArtifactMetadata, error)

	// Composition operations
	CreateComposition(ctx context.Context, composition *Composition) error
	GetComposition(ctx context.Context, id uuid.UUID) (*Composition, error)
	UpdateComposition(ctx context.Context, composition *Composition) error
	DeleteComposition(ctx context.Context, id uuid.UUID) error

	// Generation correlation operations (webhook idempotence)
	BindCorrelation(ctx context.Context, correlationID string, artifactID uuid.UUID) error
	GetCorrelation(ctx context.Context, correlationID string) (uuid.UUID, error)

	// Reconciliation: records stuck in an in-flight state past a threshold
	ListStalledArtifacts(ctx context.Context, olderThan time.Time) ([]*MediaArtifact, error)
	ListStalledCompositions(ctx context.Context, olderThan time.Time) ([]*Composition, error)
}
