package mediapipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/notify"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/objectkey"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/queue"
)

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	enqueuer   queue.Enqueuer
	notifier   notify.Notifier
	keys       objectkey.Generator
	urlTTL     time.Duration
	jobTimeout time.Duration
	maxRetries int
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) { s.repository = repo }
}

// WithBlobStore sets the blob storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) { s.blobStore = store }
}

// WithEnqueuer sets the job queue producer
func WithEnqueuer(enq queue.Enqueuer) Option {
	return func(s *service) { s.enqueuer = enq }
}

// WithNotifier sets the progress notifier
func WithNotifier(n notify.Notifier) Option {
	return func(s *service) { s.notifier = n }
}

// WithKeyGenerator sets the object key generation strategy
func WithKeyGenerator(g objectkey.Generator) Option {
	return func(s *service) { s.keys = g }
}

// WithURLTTL sets the lifetime reported for signed URLs
func WithURLTTL(d time.Duration) Option {
	return func(s *service) { s.urlTTL = d }
}

// WithJobTimeout sets the visibility timeout requested for enqueued jobs
func WithJobTimeout(d time.Duration) Option {
	return func(s *service) { s.jobTimeout = d }
}

// WithMaxRetries sets the retry budget requested for enqueued jobs
func WithMaxRetries(n int) Option {
	return func(s *service) { s.maxRetries = n }
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		notifier:   notify.Noop{},
		keys:       objectkey.NewOwnerScoped(),
		urlTTL:     time.Hour,
		jobTimeout: queue.DefaultTimeout,
		maxRetries: queue.DefaultMaxRetries,
	}
	for _, option := range options {
		option(s)
	}
	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.enqueuer == nil {
		return nil, fmt.Errorf("enqueuer is required")
	}
	return s, nil
}

// Ingress operations

func (s *service) RequestImport(ctx context.Context, req ImportRequest) (*ImportReceipt, error) {
	if err := validateImportRequest(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	meta := make(map[string]any, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta[MetaSourceURL] = req.SourceURL
	if req.CorrelationID != "" {
		meta[MetaCorrelationID] = req.CorrelationID
	}

	artifact := &MediaArtifact{
		ID:        uuid.New(),
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		Kind:      req.Kind,
		Status:    ArtifactStatusPending,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	meta[MetaJobID] = ImportJobID(artifact.ID)

	if err := s.repository.CreateArtifact(ctx, artifact); err != nil {
		return nil, &ArtifactError{ArtifactID: artifact.ID, Op: "create", Err: err}
	}

	if req.CorrelationID != "" {
		if err := s.repository.BindCorrelation(ctx, req.CorrelationID, artifact.ID); err != nil {
			if errors.Is(err, ErrCorrelationExists) {
				return nil, fmt.Errorf("%w: correlation id %q already in use", ErrInvalidRequest, req.CorrelationID)
			}
			return nil, &ArtifactError{ArtifactID: artifact.ID, Op: "bind_correlation", Err: err}
		}
	}

	jobID, err := s.enqueueImport(ctx, artifact, req.SourceURL, req.CorrelationID, req.HighPriority)
	if err != nil {
		return nil, err
	}

	s.publishArtifact(ctx, artifact, nil)
	return &ImportReceipt{ArtifactID: artifact.ID, JobID: jobID, Status: artifact.Status}, nil
}

func (s *service) RegisterGeneration(ctx context.Context, req RegisterGenerationRequest) (*MediaArtifact, error) {
	if req.CorrelationID == "" {
		return nil, fmt.Errorf("%w: correlation id is required", ErrInvalidRequest)
	}
	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidRequest)
	}
	kind := req.Kind
	if kind == "" {
		kind = KindVideo
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown artifact kind %q", ErrInvalidRequest, req.Kind)
	}

	now := time.Now().UTC()
	meta := map[string]any{MetaCorrelationID: req.CorrelationID}
	if len(req.GenerationParams) > 0 {
		meta[MetaGenerationParams] = req.GenerationParams
	}

	artifact := &MediaArtifact{
		ID:        uuid.New(),
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		Kind:      kind,
		Status:    ArtifactStatusPending,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repository.CreateArtifact(ctx, artifact); err != nil {
		return nil, &ArtifactError{ArtifactID: artifact.ID, Op: "create", Err: err}
	}
	if err := s.repository.BindCorrelation(ctx, req.CorrelationID, artifact.ID); err != nil {
		if errors.Is(err, ErrCorrelationExists) {
			return nil, fmt.Errorf("%w: correlation id %q already in use", ErrInvalidRequest, req.CorrelationID)
		}
		return nil, &ArtifactError{ArtifactID: artifact.ID, Op: "bind_correlation", Err: err}
	}
	return artifact, nil
}

// HandleGenerationComplete translates a provider completion webhook into
// exactly one import job enqueue. Duplicate deliveries for an
// already-enqueued or already-terminal artifact are detected and
// discarded, never re-enqueued.
func (s *service) HandleGenerationComplete(ctx context.Context, req WebhookRequest) (*ImportReceipt, error) {
	if req.CorrelationID == "" {
		return nil, fmt.Errorf("%w: correlation id is required", ErrInvalidRequest)
	}

	artifactID, err := s.repository.GetCorrelation(ctx, req.CorrelationID)
	if err != nil {
		if errors.Is(err, ErrCorrelationNotFound) {
			return nil, fmt.Errorf("%w: unknown correlation id %q", ErrInvalidRequest, req.CorrelationID)
		}
		return nil, err
	}

	artifact, err := s.repository.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, &ArtifactError{ArtifactID: artifactID, Op: "webhook", Err: err}
	}

	receipt := &ImportReceipt{ArtifactID: artifact.ID, JobID: ImportJobID(artifact.ID), Status: artifact.Status}

	// Terminal artifact: a late or duplicate delivery, nothing to do.
	if artifact.Status.terminal() {
		return receipt, nil
	}

	if req.Status != "" && req.Status != "succeeded" && req.Status != "completed" {
		if err := s.FailArtifact(ctx, artifact.ID, fmt.Errorf("generation failed upstream (status %q)", req.Status)); err != nil {
			return nil, err
		}
		receipt.Status = ArtifactStatusFailed
		return receipt, nil
	}

	if !validSourceURL(req.ResultURL) {
		return nil, fmt.Errorf("%w: result url is not a valid http(s) url", ErrInvalidRequest)
	}

	artifact.Metadata[MetaSourceURL] = req.ResultURL
	artifact.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateArtifact(ctx, artifact); err != nil {
		return nil, &ArtifactError{ArtifactID: artifact.ID, Op: "webhook", Err: err}
	}

	if _, err := s.enqueueImport(ctx, artifact, req.ResultURL, req.CorrelationID, false); err != nil {
		// Already enqueued by an earlier delivery: idempotent discard.
		if errors.Is(err, queue.ErrDuplicateJob) {
			return receipt, nil
		}
		return nil, err
	}

	s.publishArtifact(ctx, artifact, nil)
	return receipt, nil
}

func (s *service) CreateComposition(ctx context.Context, req CreateCompositionRequest) (*CompositionReceipt, error) {
	if err := s.validateCompositionRequest(ctx, req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	comp := &Composition{
		ID:        uuid.New(),
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		Status:    CompositionStatusPending,
		Timeline:  req.Timeline,
		Output:    req.Output,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	comp.Metadata[MetaJobID] = ComposeJobID(comp.ID)

	if err := s.repository.CreateComposition(ctx, comp); err != nil {
		return nil, &CompositionError{CompositionID: comp.ID, Op: "create", Err: err}
	}

	payload, err := json.Marshal(ComposePayload{CompositionID: comp.ID})
	if err != nil {
		return nil, &CompositionError{CompositionID: comp.ID, Op: "encode_payload", Err: err}
	}

	jobID, err := s.enqueuer.Enqueue(ctx, queue.KindCompose, payload,
		queue.WithJobID(ComposeJobID(comp.ID)),
		queue.WithMaxRetries(s.maxRetries),
		queue.WithTimeout(s.jobTimeout),
	)
	if err != nil {
		return nil, &CompositionError{
			CompositionID: comp.ID,
			Op:            "enqueue",
			Err:           fmt.Errorf("%w: %v", ErrQueueUnavailable, err),
		}
	}

	comp.Status = CompositionStatusQueued
	comp.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateComposition(ctx, comp); err != nil {
		return nil, &CompositionError{CompositionID: comp.ID, Op: "update", Err: err}
	}

	s.publishComposition(ctx, comp, nil)
	return &CompositionReceipt{CompositionID: comp.ID, JobID: jobID, Status: comp.Status}, nil
}

// Read operations

func (s *service) GetArtifact(ctx context.Context, id uuid.UUID) (*MediaArtifact, error) {
	return s.repository.GetArtifact(ctx, id)
}

func (s *service) GetArtifactDetails(ctx context.Context, id uuid.UUID) (*ArtifactDetails, error) {
	artifact, err := s.repository.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}

	details := &ArtifactDetails{Artifact: artifact}
	if meta, err := s.repository.GetArtifactMetadata(ctx, id); err == nil {
		details.Metadata = meta
	}

	// Signed URLs are minted on read, never stored.
	if ok, _ := canDownloadArtifact(artifact.Status); ok {
		fileName := artifact.Name
		if details.Metadata != nil && details.Metadata.FileName != "" {
			fileName = details.Metadata.FileName
		}
		u, err := s.blobStore.GetDownloadURL(ctx, artifact.ObjectKey, fileName)
		if err != nil {
			return nil, &StorageError{Key: artifact.ObjectKey, Op: "get_download_url", Err: err}
		}
		details.URL = u

		if artifact.ThumbnailKey != "" {
			tu, err := s.blobStore.GetPreviewURL(ctx, artifact.ThumbnailKey)
			if err != nil {
				return nil, &StorageError{Key: artifact.ThumbnailKey, Op: "get_preview_url", Err: err}
			}
			details.ThumbnailURL = tu
		}

		expires := time.Now().UTC().Add(s.urlTTL)
		details.ExpiresAt = &expires
	}
	return details, nil
}

func (s *service) ListArtifacts(ctx context.Context, ownerID uuid.UUID) ([]*MediaArtifact, error) {
	return s.repository.ListArtifacts(ctx, ownerID)
}

func (s *service) DeleteArtifact(ctx context.Context, id uuid.UUID) error {
	if err := s.repository.DeleteArtifact(ctx, id); err != nil {
		return &ArtifactError{ArtifactID: id, Op: "delete", Err: err}
	}
	return nil
}

func (s *service) GetComposition(ctx context.Context, id uuid.UUID) (*Composition, error) {
	return s.repository.GetComposition(ctx, id)
}

func (s *service) GetCompositionDownload(ctx context.Context, id uuid.UUID) (*DownloadLink, error) {
	comp, err := s.repository.GetComposition(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := canDownloadComposition(comp.Status); err != nil {
		return nil, err
	}
	if comp.OutputArtifactID == nil {
		return nil, &CompositionError{CompositionID: id, Op: "download", Err: ErrArtifactNotFound}
	}

	artifact, err := s.repository.GetArtifact(ctx, *comp.OutputArtifactID)
	if err != nil {
		return nil, &CompositionError{CompositionID: id, Op: "download", Err: err}
	}

	u, err := s.blobStore.GetDownloadURL(ctx, artifact.ObjectKey, comp.Name)
	if err != nil {
		return nil, &StorageError{Key: artifact.ObjectKey, Op: "get_download_url", Err: err}
	}
	return &DownloadLink{URL: u, ExpiresAt: time.Now().UTC().Add(s.urlTTL)}, nil
}

// Worker lifecycle operations

// BeginImport marks the artifact uploading. This is the single write
// that makes the in-flight state externally visible.
func (s *service) BeginImport(ctx context.Context, artifactID uuid.UUID) (*MediaArtifact, error) {
	artifact, err := s.repository.GetArtifact(ctx, artifactID)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			return nil, fmt.Errorf("%w: artifact %s", ErrArtifactDeleted, artifactID)
		}
		return nil, err
	}
	if err := ValidateArtifactTransition(artifact.Status, ArtifactStatusUploading); err != nil {
		return nil, err
	}

	artifact.Status = ArtifactStatusUploading
	artifact.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateArtifact(ctx, artifact); err != nil {
		return nil, &ArtifactError{ArtifactID: artifactID, Op: "begin_import", Err: err}
	}

	s.publishArtifact(ctx, artifact, notify.Progress(10))
	return artifact, nil
}

func (s *service) FinalizeImport(ctx context.Context, req FinalizeImportRequest) error {
	now := time.Now().UTC()
	meta := &ArtifactMetadata{
		ArtifactID: req.ArtifactID,
		FileName:   req.FileName,
		MimeType:   req.MimeType,
		SizeBytes:  req.SizeBytes,
		Checksum:   req.Checksum,
		Video:      req.Video,
		Image:      req.Image,
		Audio:      req.Audio,
		Extra:      map[string]any{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.ThumbnailErr != "" {
		meta.Extra[MetaThumbnailError] = req.ThumbnailErr
	}

	err := s.repository.FinalizeArtifact(ctx, FinalizeArtifactParams{
		ArtifactID:   req.ArtifactID,
		Status:       ArtifactStatusReady,
		ObjectKey:    req.ObjectKey,
		ThumbnailKey: req.ThumbnailKey,
		Checksum:     req.Checksum,
		SizeBytes:    req.SizeBytes,
		Metadata:     meta,
		ThumbnailErr: req.ThumbnailErr,
	})
	if err != nil {
		return &ArtifactError{ArtifactID: req.ArtifactID, Op: "finalize", Err: err}
	}

	if artifact, err := s.repository.GetArtifact(ctx, req.ArtifactID); err == nil {
		s.publishArtifact(ctx, artifact, notify.Progress(100))
	}
	return nil
}

func (s *service) FailArtifact(ctx context.Context, artifactID uuid.UUID, cause error) error {
	note := "processing failed"
	if cause != nil {
		note = cause.Error()
	}

	err := s.repository.FinalizeArtifact(ctx, FinalizeArtifactParams{
		ArtifactID: artifactID,
		Status:     ArtifactStatusFailed,
		ErrorNote:  note,
	})
	if err != nil {
		return &ArtifactError{ArtifactID: artifactID, Op: "fail", Err: err}
	}

	if artifact, err := s.repository.GetArtifact(ctx, artifactID); err == nil {
		s.publishArtifact(ctx, artifact, nil)
	}
	return nil
}

func (s *service) BeginComposition(ctx context.Context, id uuid.UUID) (*Composition, error) {
	comp, err := s.repository.GetComposition(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateCompositionTransition(comp.Status, CompositionStatusProcessing); err != nil {
		return nil, err
	}

	comp.Status = CompositionStatusProcessing
	comp.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateComposition(ctx, comp); err != nil {
		return nil, &CompositionError{CompositionID: id, Op: "begin", Err: err}
	}

	s.publishComposition(ctx, comp, notify.Progress(comp.Progress))
	return comp, nil
}

func (s *service) SetCompositionProgress(ctx context.Context, id uuid.UUID, percent float64) error {
	comp, err := s.repository.GetComposition(ctx, id)
	if err != nil {
		return err
	}
	comp.Progress = percent
	comp.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateComposition(ctx, comp); err != nil {
		return &CompositionError{CompositionID: id, Op: "progress", Err: err}
	}

	s.publishComposition(ctx, comp, notify.Progress(percent))
	return nil
}

// RegisterCompositionOutput records the rendered output as a ready
// artifact owned by the composition's owner. The artifact id is derived
// from the composition id, so a redelivered render job lands on the same
// record instead of minting a duplicate.
func (s *service) RegisterCompositionOutput(ctx context.Context, compositionID uuid.UUID, req FinalizeImportRequest) (*MediaArtifact, error) {
	comp, err := s.repository.GetComposition(ctx, compositionID)
	if err != nil {
		return nil, err
	}

	outputID := CompositionOutputID(compositionID)
	now := time.Now().UTC()

	artifact, err := s.repository.GetArtifact(ctx, outputID)
	if errors.Is(err, ErrArtifactNotFound) {
		artifact = &MediaArtifact{
			ID:        outputID,
			OwnerID:   comp.OwnerID,
			Name:      comp.Name,
			Kind:      KindVideo,
			Status:    ArtifactStatusUploading,
			Metadata:  map[string]any{MetaJobID: ComposeJobID(compositionID)},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repository.CreateArtifact(ctx, artifact); err != nil {
			return nil, &ArtifactError{ArtifactID: outputID, Op: "create_output", Err: err}
		}
	} else if err != nil {
		return nil, err
	}

	req.ArtifactID = outputID
	if err := s.FinalizeImport(ctx, req); err != nil {
		return nil, err
	}
	return s.repository.GetArtifact(ctx, outputID)
}

func (s *service) CompleteComposition(ctx context.Context, id uuid.UUID, outputArtifactID uuid.UUID) error {
	comp, err := s.repository.GetComposition(ctx, id)
	if err != nil {
		return err
	}
	if err := ValidateCompositionTransition(comp.Status, CompositionStatusCompleted); err != nil {
		return err
	}

	comp.Status = CompositionStatusCompleted
	comp.OutputArtifactID = &outputArtifactID
	comp.Progress = 100
	comp.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateComposition(ctx, comp); err != nil {
		return &CompositionError{CompositionID: id, Op: "complete", Err: err}
	}

	s.publishComposition(ctx, comp, notify.Progress(100))
	return nil
}

func (s *service) FailComposition(ctx context.Context, id uuid.UUID, cause error) error {
	comp, err := s.repository.GetComposition(ctx, id)
	if err != nil {
		return err
	}

	note := "render failed"
	if cause != nil {
		note = cause.Error()
	}
	comp.Status = CompositionStatusFailed
	if comp.Metadata == nil {
		comp.Metadata = map[string]any{}
	}
	comp.Metadata[MetaError] = note
	comp.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateComposition(ctx, comp); err != nil {
		return &CompositionError{CompositionID: id, Op: "fail", Err: err}
	}

	s.publishComposition(ctx, comp, nil)
	return nil
}

// Maintenance

// ReconcileStale fails artifacts and compositions stuck in an in-flight
// state with no live job, which happens when queue bookkeeping is lost.
func (s *service) ReconcileStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	count := 0

	artifacts, err := s.repository.ListStalledArtifacts(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, a := range artifacts {
		if err := s.FailArtifact(ctx, a.ID, fmt.Errorf("stalled in %s with no active job", a.Status)); err != nil {
			slog.Warn("reconcile: failed to mark stalled artifact", "artifact_id", a.ID, "err", err)
			continue
		}
		count++
	}

	comps, err := s.repository.ListStalledCompositions(ctx, cutoff)
	if err != nil {
		return count, err
	}
	for _, c := range comps {
		if err := s.FailComposition(ctx, c.ID, fmt.Errorf("stalled in %s with no active job", c.Status)); err != nil {
			slog.Warn("reconcile: failed to mark stalled composition", "composition_id", c.ID, "err", err)
			continue
		}
		count++
	}
	return count, nil
}

// Helpers

func (s *service) enqueueImport(ctx context.Context, artifact *MediaArtifact, sourceURL, correlationID string, highPriority bool) (string, error) {
	payload, err := json.Marshal(ImportPayload{
		ArtifactID:    artifact.ID,
		SourceURL:     sourceURL,
		Kind:          artifact.Kind,
		CorrelationID: correlationID,
	})
	if err != nil {
		return "", &ArtifactError{ArtifactID: artifact.ID, Op: "encode_payload", Err: err}
	}

	opts := []queue.Option{
		queue.WithJobID(ImportJobID(artifact.ID)),
		queue.WithMaxRetries(s.maxRetries),
		queue.WithTimeout(s.jobTimeout),
	}
	if highPriority {
		opts = append(opts, queue.WithQueue(queue.QueueCritical))
	}

	jobID, err := s.enqueuer.Enqueue(ctx, ImportJobKind(artifact.Kind), payload, opts...)
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateJob) {
			return "", err
		}
		return "", &ArtifactError{
			ArtifactID: artifact.ID,
			Op:         "enqueue",
			Err:        fmt.Errorf("%w: %v", ErrQueueUnavailable, err),
		}
	}
	return jobID, nil
}

func (s *service) publishArtifact(ctx context.Context, artifact *MediaArtifact, progress *float64) {
	ev := notify.Event{
		SubjectID:   artifact.ID.String(),
		SubjectKind: notify.SubjectArtifact,
		Status:      string(artifact.Status),
		Progress:    progress,
		Error:       artifact.ErrorNote(),
		Timestamp:   time.Now().UTC(),
	}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		slog.Debug("progress publish failed", "subject_id", ev.SubjectID, "err", err)
	}
}

func (s *service) publishComposition(ctx context.Context, comp *Composition, progress *float64) {
	errNote := ""
	if comp.Metadata != nil {
		if v, ok := comp.Metadata[MetaError].(string); ok {
			errNote = v
		}
	}
	ev := notify.Event{
		SubjectID:   comp.ID.String(),
		SubjectKind: notify.SubjectComposition,
		Status:      string(comp.Status),
		Progress:    progress,
		Error:       errNote,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		slog.Debug("progress publish failed", "subject_id", ev.SubjectID, "err", err)
	}
}

func (s *service) validateCompositionRequest(ctx context.Context, req CreateCompositionRequest) error {
	if req.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: owner id is required", ErrInvalidRequest)
	}
	if len(req.Timeline) == 0 {
		return fmt.Errorf("%w: timeline must contain at least one clip", ErrInvalidRequest)
	}
	if req.Output.Width <= 0 || req.Output.Height <= 0 {
		return fmt.Errorf("%w: output dimensions must be positive", ErrInvalidRequest)
	}

	// Request-time validation only; the worker re-validates at claim
	// time because clips can be deleted between enqueue and execution.
	for i, clip := range req.Timeline {
		if clip.EndSeconds > 0 && clip.EndSeconds <= clip.StartSeconds {
			return fmt.Errorf("%w: clip %d has an empty time range", ErrInvalidRequest, i)
		}
		artifact, err := s.repository.GetArtifact(ctx, clip.ArtifactID)
		if err != nil {
			return fmt.Errorf("%w: clip %d references unknown artifact %s", ErrInvalidRequest, i, clip.ArtifactID)
		}
		if artifact.Status != ArtifactStatusReady {
			return fmt.Errorf("%w: clip %d artifact is %s", ErrInvalidRequest, i, artifact.Status)
		}
	}
	return nil
}

func validateImportRequest(req ImportRequest) error {
	if req.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: owner id is required", ErrInvalidRequest)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown artifact kind %q", ErrInvalidRequest, req.Kind)
	}
	if !validSourceURL(req.SourceURL) {
		return fmt.Errorf("%w: source url must be a valid http(s) url", ErrInvalidRequest)
	}
	return nil
}

func validSourceURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
