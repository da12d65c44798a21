package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

// Repository implements mediapipe.Repository using in-memory storage
type Repository struct {
	mu           sync.RWMutex
	artifacts    map[uuid.UUID]*mediapipe.MediaArtifact
	metadata     map[uuid.UUID]*mediapipe.ArtifactMetadata
	compositions map[uuid.UUID]*mediapipe.Composition
	correlations map[string]uuid.UUID // correlation_id -> artifact_id
}

// New creates a new in-memory repository
func New() mediapipe.Repository {
	return &Repository{
		artifacts:    make(map[uuid.UUID]*mediapipe.MediaArtifact),
		metadata:     make(map[uuid.UUID]*mediapipe.ArtifactMetadata),
		compositions: make(map[uuid.UUID]*mediapipe.Composition),
		correlations: make(map[string]uuid.UUID),
	}
}

// Artifact operations

func (r *Repository) CreateArtifact(ctx context.Context, artifact *mediapipe.MediaArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to avoid external modifications
	artifactCopy := copyArtifact(artifact)
	r.artifacts[artifact.ID] = artifactCopy

	return nil
}

func (r *Repository) GetArtifact(ctx context.Context, id uuid.UUID) (*mediapipe.MediaArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	artifact, exists := r.artifacts[id]
	if !exists {
		return nil, mediapipe.ErrArtifactNotFound
	}
	if artifact.DeletedAt != nil {
		return nil, mediapipe.ErrArtifactDeleted
	}
	return copyArtifact(artifact), nil
}

func (r *Repository) UpdateArtifact(ctx context.Context, artifact *mediapipe.MediaArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.artifacts[artifact.ID]
	if !exists {
		return mediapipe.ErrArtifactNotFound
	}
	if existing.DeletedAt != nil {
		return mediapipe.ErrArtifactDeleted
	}

	r.artifacts[artifact.ID] = copyArtifact(artifact)
	return nil
}

func (r *Repository) DeleteArtifact(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.artifacts[id]
	if !exists {
		return mediapipe.ErrArtifactNotFound
	}
	if a.DeletedAt != nil {
		return mediapipe.ErrArtifactDeleted
	}

	now := time.Now().UTC()
	a.DeletedAt = &now
	a.UpdatedAt = now
	return nil
}

func (r *Repository) ListArtifacts(ctx context.Context, ownerID uuid.UUID) ([]*mediapipe.MediaArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mediapipe.MediaArtifact
	for _, artifact := range r.artifacts {
		if artifact.OwnerID == ownerID && artifact.DeletedAt == nil {
			result = append(result, copyArtifact(artifact))
		}
	}

	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// FinalizeArtifact applies the terminal write atomically under one lock:
// status, object location, integrity fields and metadata land together,
// so a crash between steps can never leave a ready artifact without its
// object key.
func (r *Repository) FinalizeArtifact(ctx context.Context, params mediapipe.FinalizeArtifactParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.artifacts[params.ArtifactID]
	if !exists {
		return mediapipe.ErrArtifactNotFound
	}
	if a.DeletedAt != nil {
		return mediapipe.ErrArtifactDeleted
	}
	if err := mediapipe.ValidateArtifactTransition(a.Status, params.Status); err != nil {
		return err
	}

	now := time.Now().UTC()
	a.Status = params.Status
	a.UpdatedAt = now
	if params.ObjectKey != "" {
		a.ObjectKey = params.ObjectKey
	}
	if params.ThumbnailKey != "" {
		a.ThumbnailKey = params.ThumbnailKey
	}
	if params.Checksum != "" {
		a.Checksum = params.Checksum
	}
	if params.SizeBytes > 0 {
		a.SizeBytes = params.SizeBytes
	}
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	if params.ErrorNote != "" {
		a.Metadata[mediapipe.MetaError] = params.ErrorNote
	}
	if params.ThumbnailErr != "" {
		a.Metadata[mediapipe.MetaThumbnailError] = params.ThumbnailErr
	}
	if params.Metadata != nil {
		metaCopy := *params.Metadata
		r.metadata[params.ArtifactID] = &metaCopy
	}

	return nil
}

// Artifact metadata operations

func (r *Repository) SetArtifactMetadata(ctx context.Context, metadata *mediapipe.ArtifactMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.artifacts[metadata.ArtifactID]; !exists {
		return mediapipe.ErrArtifactNotFound
	}

	metaCopy := *metadata
	r.metadata[metadata.ArtifactID] = &metaCopy
	return nil
}

func (r *Repository) GetArtifactMetadata(ctx context.Context, artifactID uuid.UUID) (*mediapipe.ArtifactMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, exists := r.metadata[artifactID]
	if !exists {
		return nil, mediapipe.ErrArtifactNotFound
	}

	metaCopy := *meta
	return &metaCopy, nil
}

// Composition operations

func (r *Repository) CreateComposition(ctx context.Context, composition *mediapipe.Composition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.compositions[composition.ID] = copyComposition(composition)
	return nil
}

func (r *Repository) GetComposition(ctx context.Context, id uuid.UUID) (*mediapipe.Composition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	comp, exists := r.compositions[id]
	if !exists || comp.DeletedAt != nil {
		return nil, mediapipe.ErrCompositionNotFound
	}
	return copyComposition(comp), nil
}

func (r *Repository) UpdateComposition(ctx context.Context, composition *mediapipe.Composition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.compositions[composition.ID]
	if !exists || existing.DeletedAt != nil {
		return mediapipe.ErrCompositionNotFound
	}

	r.compositions[composition.ID] = copyComposition(composition)
	return nil
}

func (r *Repository) DeleteComposition(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.compositions[id]
	if !exists || c.DeletedAt != nil {
		return mediapipe.ErrCompositionNotFound
	}

	now := time.Now().UTC()
	c.DeletedAt = &now
	c.UpdatedAt = now
	return nil
}

// Generation correlation operations

func (r *Repository) BindCorrelation(ctx context.Context, correlationID string, artifactID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.correlations[correlationID]; exists {
		if existing == artifactID {
			return nil
		}
		return mediapipe.ErrCorrelationExists
	}
	r.correlations[correlationID] = artifactID
	return nil
}

func (r *Repository) GetCorrelation(ctx context.Context, correlationID string) (uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	artifactID, exists := r.correlations[correlationID]
	if !exists {
		return uuid.Nil, mediapipe.ErrCorrelationNotFound
	}
	return artifactID, nil
}

// Reconciliation

func (r *Repository) ListStalledArtifacts(ctx context.Context, olderThan time.Time) ([]*mediapipe.MediaArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mediapipe.MediaArtifact
	for _, a := range r.artifacts {
		if a.DeletedAt != nil {
			continue
		}
		inflight := a.Status == mediapipe.ArtifactStatusPending || a.Status == mediapipe.ArtifactStatusUploading
		if inflight && a.UpdatedAt.Before(olderThan) {
			result = append(result, copyArtifact(a))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result, nil
}

func (r *Repository) ListStalledCompositions(ctx context.Context, olderThan time.Time) ([]*mediapipe.Composition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mediapipe.Composition
	for _, c := range r.compositions {
		if c.DeletedAt != nil {
			continue
		}
		inflight := c.Status == mediapipe.CompositionStatusPending ||
			c.Status == mediapipe.CompositionStatusQueued ||
			c.Status == mediapipe.CompositionStatusProcessing
		if inflight && c.UpdatedAt.Before(olderThan) {
			result = append(result, copyComposition(c))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result, nil
}

// copyArtifact clones the record and its metadata map so callers can
// never mutate repository state through a returned pointer.
func copyArtifact(a *mediapipe.MediaArtifact) *mediapipe.MediaArtifact {
	artifactCopy := *a
	if a.Metadata != nil {
		artifactCopy.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			artifactCopy.Metadata[k] = v
		}
	}
	return &artifactCopy
}

func copyComposition(c *mediapipe.Composition) *mediapipe.Composition {
	compCopy := *c
	if c.Timeline != nil {
		compCopy.Timeline = make([]mediapipe.Clip, len(c.Timeline))
		copy(compCopy.Timeline, c.Timeline)
	}
	if c.Metadata != nil {
		compCopy.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			compCopy.Metadata[k] = v
		}
	}
	return &compCopy
}
