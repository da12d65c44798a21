package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/inspector"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/notify"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/queue"
)

// ProcessImport handles one import job delivery. Permanent failures mark
// the artifact failed and dead-letter the job; retryable failures leave
// the artifact in uploading for the next attempt, except on the final
// attempt where the artifact is failed so it never sticks in limbo.
func (p *Pipeline) ProcessImport(ctx context.Context, job *queue.Job) error {
	var payload mediapipe.ImportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Terminal(fmt.Errorf("decode import payload: %w", err))
	}

	log := p.logger.With("job_id", job.ID, "artifact_id", payload.ArtifactID, "attempt", job.Attempt)

	err := p.importArtifact(ctx, payload)
	if err == nil {
		return nil
	}

	if !mediapipe.IsRetryable(err) {
		log.Error("import failed permanently", "err", err)
		if ferr := p.svc.FailArtifact(ctx, payload.ArtifactID, err); ferr != nil {
			log.Error("could not mark artifact failed", "err", ferr)
		}
		return queue.Terminal(err)
	}

	if finalAttempt(job) {
		log.Error("import failed, retries exhausted", "err", err)
		cause := fmt.Errorf("retries exhausted: %w", err)
		if ferr := p.svc.FailArtifact(ctx, payload.ArtifactID, cause); ferr != nil {
			log.Error("could not mark artifact failed", "err", ferr)
		}
		return err
	}

	log.Warn("import attempt failed, will retry", "err", err)
	return err
}

// ImportArtifact runs the import flow synchronously, outside the queue.
// The ingress API uses it for small images where a round trip through
// the queue costs more than the work itself.
func (p *Pipeline) ImportArtifact(ctx context.Context, payload mediapipe.ImportPayload) error {
	err := p.importArtifact(ctx, payload)
	if err != nil && !mediapipe.IsRetryable(err) {
		if ferr := p.svc.FailArtifact(ctx, payload.ArtifactID, err); ferr != nil {
			p.logger.Error("could not mark artifact failed", "artifact_id", payload.ArtifactID, "err", ferr)
		}
	}
	return err
}

func (p *Pipeline) importArtifact(ctx context.Context, payload mediapipe.ImportPayload) error {
	artifact, err := p.svc.GetArtifact(ctx, payload.ArtifactID)
	if err != nil {
		return err
	}

	// Redelivery of a finished job: the first delivery won.
	if artifact.Status == mediapipe.ArtifactStatusReady {
		p.logger.Info("artifact already ready, skipping redelivered import", "artifact_id", artifact.ID)
		return nil
	}

	artifact, err = p.svc.BeginImport(ctx, artifact.ID)
	if err != nil {
		return err
	}

	scratch, err := os.MkdirTemp(p.scratchDir, "import-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	src, err := p.fetchSource(ctx, payload.SourceURL, scratch)
	if err != nil {
		return err
	}
	p.publishProgress(ctx, artifact.ID, 40)

	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := p.inspectorFor(artifact.Kind).Inspect(ctx, src.Path, artifact.Kind)
	if err != nil {
		return err
	}
	p.publishProgress(ctx, artifact.ID, 70)

	// Thumbnails are best-effort: a failure is recorded on the artifact
	// but never fails the import.
	thumbPath, thumbErr := p.renderThumbnail(ctx, artifact.Kind, src.Path, scratch)

	if err := ctx.Err(); err != nil {
		return err
	}

	primaryKey := p.keys.PrimaryKey(artifact.OwnerID, artifact.ID, src.FileName)
	mimeType := guessMimeType(info.MimeType, src.ContentType)
	if err := p.uploadFile(ctx, src.Path, primaryKey, mimeType); err != nil {
		return err
	}

	thumbKey := ""
	if thumbErr == nil && thumbPath != "" {
		thumbKey = p.keys.ThumbnailKey(artifact.OwnerID, artifact.ID)
		if err := p.uploadFile(ctx, thumbPath, thumbKey, "image/jpeg"); err != nil {
			thumbErr = err
			thumbKey = ""
		}
	}
	p.publishProgress(ctx, artifact.ID, 90)

	req := mediapipe.FinalizeImportRequest{
		ArtifactID:   artifact.ID,
		ObjectKey:    primaryKey,
		ThumbnailKey: thumbKey,
		Checksum:     src.Checksum,
		SizeBytes:    src.SizeBytes,
		MimeType:     mimeType,
		FileName:     src.FileName,
		Video:        info.Video,
		Image:        info.Image,
		Audio:        info.Audio,
	}
	if thumbErr != nil {
		p.logger.Warn("thumbnail generation failed", "artifact_id", artifact.ID, "err", thumbErr)
		req.ThumbnailErr = thumbErr.Error()
	}

	return p.svc.FinalizeImport(ctx, req)
}

func (p *Pipeline) inspectorFor(kind mediapipe.ArtifactKind) inspector.Inspector {
	if kind == mediapipe.KindImage {
		return p.images
	}
	return p.media
}

// renderThumbnail returns the local path of the generated thumbnail, or
// "" with an error. Audio artifacts have no thumbnail.
func (p *Pipeline) renderThumbnail(ctx context.Context, kind mediapipe.ArtifactKind, srcPath, scratch string) (string, error) {
	var thumbnailer inspector.Thumbnailer
	switch kind {
	case mediapipe.KindVideo:
		thumbnailer = p.media
	case mediapipe.KindImage:
		thumbnailer = p.images
	default:
		return "", nil
	}

	thumbPath := filepath.Join(scratch, "thumbnail.jpg")
	if err := thumbnailer.Thumbnail(ctx, srcPath, thumbPath, p.thumbWidth); err != nil {
		return "", err
	}
	return thumbPath, nil
}

func (p *Pipeline) uploadFile(ctx context.Context, localPath, objectKey, mimeType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	if err := p.store.Upload(ctx, f, mediapipe.UploadParams{ObjectKey: objectKey, MimeType: mimeType}); err != nil {
		return fmt.Errorf("%w: key %s: %v", mediapipe.ErrStorageUpload, objectKey, err)
	}
	return nil
}

func (p *Pipeline) publishProgress(ctx context.Context, artifactID uuid.UUID, pct float64) {
	ev := notify.Event{
		SubjectID:   artifactID.String(),
		SubjectKind: notify.SubjectArtifact,
		Status:      string(mediapipe.ArtifactStatusUploading),
		Progress:    notify.Progress(pct),
		Timestamp:   time.Now().UTC(),
	}
	if err := p.notifier.Publish(ctx, ev); err != nil {
		p.logger.Debug("progress publish failed", "artifact_id", artifactID, "err", err)
	}
}
