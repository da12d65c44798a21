package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/queue"
)

// ProcessCompose handles one composition render job delivery.
func (p *Pipeline) ProcessCompose(ctx context.Context, job *queue.Job) error {
	var payload mediapipe.ComposePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Terminal(fmt.Errorf("decode compose payload: %w", err))
	}

	log := p.logger.With("job_id", job.ID, "composition_id", payload.CompositionID, "attempt", job.Attempt)

	err := p.renderComposition(ctx, payload.CompositionID)
	if err == nil {
		return nil
	}

	if !mediapipe.IsRetryable(err) {
		log.Error("composition failed permanently", "err", err)
		if ferr := p.svc.FailComposition(ctx, payload.CompositionID, err); ferr != nil {
			log.Error("could not mark composition failed", "err", ferr)
		}
		return queue.Terminal(err)
	}

	if finalAttempt(job) {
		log.Error("composition failed, retries exhausted", "err", err)
		cause := fmt.Errorf("retries exhausted: %w", err)
		if ferr := p.svc.FailComposition(ctx, payload.CompositionID, cause); ferr != nil {
			log.Error("could not mark composition failed", "err", ferr)
		}
		return err
	}

	log.Warn("composition attempt failed, will retry", "err", err)
	return err
}

func (p *Pipeline) renderComposition(ctx context.Context, compositionID uuid.UUID) error {
	comp, err := p.svc.GetComposition(ctx, compositionID)
	if err != nil {
		return err
	}

	// Redelivery of a finished job.
	if comp.Status == mediapipe.CompositionStatusCompleted {
		p.logger.Info("composition already completed, skipping redelivered render", "composition_id", comp.ID)
		return nil
	}

	comp, err = p.svc.BeginComposition(ctx, compositionID)
	if err != nil {
		return err
	}

	scratch, err := os.MkdirTemp(p.scratchDir, "compose-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	clips, err := p.stageClips(ctx, comp, scratch)
	if err != nil {
		return err
	}
	if err := p.svc.SetCompositionProgress(ctx, comp.ID, 40); err != nil {
		p.logger.Debug("progress update failed", "composition_id", comp.ID, "err", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	format := comp.Output.Format
	if format == "" {
		format = "mp4"
	}
	outPath := filepath.Join(scratch, "output."+format)

	// Rendering spans 40..90 percent; updates are throttled to whole
	// five-percent steps to keep the notifier quiet.
	lastReported := 40.0
	onProgress := func(renderPct float64) {
		overall := 40 + renderPct*0.5
		if overall-lastReported < 5 {
			return
		}
		lastReported = overall
		if err := p.svc.SetCompositionProgress(ctx, comp.ID, overall); err != nil {
			p.logger.Debug("progress update failed", "composition_id", comp.ID, "err", err)
		}
	}

	if err := p.renderer.Render(ctx, clips, comp.Output, outPath, onProgress); err != nil {
		return err
	}
	if err := p.svc.SetCompositionProgress(ctx, comp.ID, 90); err != nil {
		p.logger.Debug("progress update failed", "composition_id", comp.ID, "err", err)
	}

	info, err := p.media.Inspect(ctx, outPath, mediapipe.KindVideo)
	if err != nil {
		return fmt.Errorf("inspect render output: %w", err)
	}

	checksum, size, err := hashFile(outPath)
	if err != nil {
		return fmt.Errorf("hash render output: %w", err)
	}

	outputID := mediapipe.CompositionOutputID(comp.ID)
	fileName := "output." + format
	primaryKey := p.keys.PrimaryKey(comp.OwnerID, outputID, fileName)
	mimeType := guessMimeType(info.MimeType, "")
	if err := p.uploadFile(ctx, outPath, primaryKey, mimeType); err != nil {
		return err
	}

	thumbKey := ""
	thumbPath, thumbErr := p.renderThumbnail(ctx, mediapipe.KindVideo, outPath, scratch)
	if thumbErr == nil && thumbPath != "" {
		thumbKey = p.keys.ThumbnailKey(comp.OwnerID, outputID)
		if err := p.uploadFile(ctx, thumbPath, thumbKey, "image/jpeg"); err != nil {
			thumbErr = err
			thumbKey = ""
		}
	}

	req := mediapipe.FinalizeImportRequest{
		ObjectKey:    primaryKey,
		ThumbnailKey: thumbKey,
		Checksum:     checksum,
		SizeBytes:    size,
		MimeType:     mimeType,
		FileName:     fileName,
		Video:        info.Video,
	}
	if thumbErr != nil {
		p.logger.Warn("output thumbnail failed", "composition_id", comp.ID, "err", thumbErr)
		req.ThumbnailErr = thumbErr.Error()
	}

	artifact, err := p.svc.RegisterCompositionOutput(ctx, comp.ID, req)
	if err != nil {
		return err
	}

	return p.svc.CompleteComposition(ctx, comp.ID, artifact.ID)
}

// stageClips re-validates every timeline reference at execution time and
// downloads the ready artifacts into the scratch directory. Clips can be
// deleted or fail between enqueue and claim, so the request-time check
// is not enough.
func (p *Pipeline) stageClips(ctx context.Context, comp *mediapipe.Composition, scratch string) ([]ClipSource, error) {
	clips := make([]ClipSource, 0, len(comp.Timeline))
	for i, clip := range comp.Timeline {
		artifact, err := p.svc.GetArtifact(ctx, clip.ArtifactID)
		if err != nil {
			return nil, fmt.Errorf("%w: clip %d artifact %s: %v", mediapipe.ErrClipNotReady, i, clip.ArtifactID, err)
		}
		if artifact.Status != mediapipe.ArtifactStatusReady {
			return nil, fmt.Errorf("%w: clip %d artifact is %s", mediapipe.ErrClipNotReady, i, artifact.Status)
		}

		localPath := filepath.Join(scratch, fmt.Sprintf("clip_%d", i))
		if err := p.downloadObject(ctx, artifact.ObjectKey, localPath); err != nil {
			return nil, err
		}

		end := clip.EndSeconds
		if end <= 0 {
			end, err = p.clipDuration(ctx, artifact, localPath)
			if err != nil {
				return nil, err
			}
		}
		if end <= clip.StartSeconds {
			return nil, fmt.Errorf("%w: clip %d has an empty time range", mediapipe.ErrInvalidRequest, i)
		}

		clips = append(clips, ClipSource{
			Path:         localPath,
			StartSeconds: clip.StartSeconds,
			EndSeconds:   end,
		})
	}
	return clips, nil
}

// clipDuration resolves an open-ended clip range from recorded metadata,
// probing the downloaded file only when the record lacks a duration.
func (p *Pipeline) clipDuration(ctx context.Context, artifact *mediapipe.MediaArtifact, localPath string) (float64, error) {
	if details, err := p.svc.GetArtifactDetails(ctx, artifact.ID); err == nil && details.Metadata != nil {
		if v := details.Metadata.Video; v != nil && v.DurationSeconds > 0 {
			return v.DurationSeconds, nil
		}
	}

	info, err := p.media.Inspect(ctx, localPath, artifact.Kind)
	if err != nil {
		return 0, err
	}
	if info.Video == nil || info.Video.DurationSeconds <= 0 {
		return 0, fmt.Errorf("%w: clip has no usable duration", mediapipe.ErrUnreadableMedia)
	}
	return info.Video.DurationSeconds, nil
}

func (p *Pipeline) downloadObject(ctx context.Context, objectKey, destPath string) error {
	rc, err := p.store.Download(ctx, objectKey)
	if err != nil {
		return fmt.Errorf("download clip object %s: %w", objectKey, err)
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("copy clip object %s: %w", objectKey, err)
	}
	return out.Close()
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}
