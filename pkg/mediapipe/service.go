package mediapipe

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service is the main interface of the media pipeline. The ingress API
// consumes the request/read operations; the worker consumes the
// lifecycle operations while holding the job's visibility lock.
type Service interface {
	// Ingress operations
	RequestImport(ctx context.Context, req ImportRequest) (*ImportReceipt, error)
	RegisterGeneration(ctx context.Context, req RegisterGenerationRequest) (*MediaArtifact, error)
	HandleGenerationComplete(ctx context.Context, req WebhookRequest) (*ImportReceipt, error)
	CreateComposition(ctx context.Context, req CreateCompositionRequest) (*CompositionReceipt, error)

	// Read operations
	GetArtifact(ctx context.Context, id uuid.UUID) (*MediaArtifact, error)
	GetArtifactDetails(ctx context.Context, id uuid.UUID) (*ArtifactDetails, error)
	ListArtifacts(ctx context.Context, ownerID uuid.UUID) ([]*MediaArtifact, error)
	DeleteArtifact(ctx context.Context, id uuid.UUID) error
	GetComposition(ctx context.Context, id uuid.UUID) (*Composition, error)
	GetCompositionDownload(ctx context.Context, id uuid.UUID) (*DownloadLink, error)

	// Worker lifecycle operations
	BeginImport(ctx context.Context, artifactID uuid.UUID) (*MediaArtifact, error)
	FinalizeImport(ctx context.Context, req FinalizeImportRequest) error
	FailArtifact(ctx context.Context, artifactID uuid.UUID, cause error) error
	BeginComposition(ctx context.Context, id uuid.UUID) (*Composition, error)
	SetCompositionProgress(ctx context.Context, id uuid.UUID, percent float64) error
	RegisterCompositionOutput(ctx context.Context, compositionID uuid.UUID, req FinalizeImportRequest) (*MediaArtifact, error)
	CompleteComposition(ctx context.Context, id uuid.UUID, outputArtifactID uuid.UUID) error
	FailComposition(ctx context.Context, id uuid.UUID, cause error) error

	// Maintenance
	ReconcileStale(ctx context.Context, staleAfter time.Duration) (int, error)
}
