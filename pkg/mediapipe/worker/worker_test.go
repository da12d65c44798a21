package worker_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/inspector"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/notify"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/objectkey"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/queue"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/repo/memory"
	memorystorage "github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/storage/memory"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/worker"
)

type pipelineEnv struct {
	svc      mediapipe.Service
	store    *memorystorage.Backend
	queue    *queue.Memory
	pipeline *worker.Pipeline
	keys     objectkey.Generator
}

// fakeMediaInspector stands in for ffprobe/ffmpeg in tests.
type fakeMediaInspector struct {
	info       *inspector.MediaInfo
	inspectErr error
	thumbErr   error
}

func (f *fakeMediaInspector) Inspect(ctx context.Context, path string, kind mediapipe.ArtifactKind) (*inspector.MediaInfo, error) {
	if f.inspectErr != nil {
		return nil, f.inspectErr
	}
	return f.info, nil
}

func (f *fakeMediaInspector) Thumbnail(ctx context.Context, inputPath, outputPath string, maxWidth int) error {
	if f.thumbErr != nil {
		return f.thumbErr
	}
	return os.WriteFile(outputPath, []byte("jpeg-bytes"), 0o644)
}

// fakeRenderer writes a marker file instead of invoking ffmpeg.
type fakeRenderer struct {
	rendered [][]worker.ClipSource
}

func (f *fakeRenderer) Render(ctx context.Context, clips []worker.ClipSource, output mediapipe.OutputSettings, outPath string, progress func(float64)) error {
	f.rendered = append(f.rendered, clips)
	if progress != nil {
		progress(50)
		progress(99)
	}
	return os.WriteFile(outPath, []byte("rendered-output"), 0o644)
}

func setupPipeline(t *testing.T, opts ...worker.PipelineOption) *pipelineEnv {
	t.Helper()

	repo := memory.New()
	store := memorystorage.New()
	q := queue.NewMemory()

	svc, err := mediapipe.New(
		mediapipe.WithRepository(repo),
		mediapipe.WithBlobStore(store),
		mediapipe.WithEnqueuer(q),
		mediapipe.WithNotifier(notify.NewMemory()),
	)
	require.NoError(t, err)

	opts = append([]worker.PipelineOption{worker.WithScratchDir(t.TempDir())}, opts...)
	pipeline, err := worker.NewPipeline(svc, store, opts...)
	require.NoError(t, err)

	return &pipelineEnv{
		svc:      svc,
		store:    store,
		queue:    q,
		pipeline: pipeline,
		keys:     objectkey.NewOwnerScoped(),
	}
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPipelineCreation(t *testing.T) {
	store := memorystorage.New()
	svc, err := mediapipe.New(
		mediapipe.WithRepository(memory.New()),
		mediapipe.WithBlobStore(store),
		mediapipe.WithEnqueuer(queue.NewMemory()),
	)
	require.NoError(t, err)

	_, err = worker.NewPipeline(nil, store)
	assert.Error(t, err)

	_, err = worker.NewPipeline(svc, nil)
	assert.Error(t, err)

	p, err := worker.NewPipeline(svc, store)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestImageImportEndToEnd(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()

	pngBytes := encodePNG(t, 64, 48)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer src.Close()

	ownerID := uuid.New()
	receipt, err := env.svc.RequestImport(ctx, mediapipe.ImportRequest{
		OwnerID:   ownerID,
		Kind:      mediapipe.KindImage,
		SourceURL: src.URL + "/pic.png",
	})
	require.NoError(t, err)

	job, err := env.queue.Claim(queue.QueueDefault)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, env.pipeline.ProcessImport(ctx, job))

	artifact, err := env.svc.GetArtifact(ctx, receipt.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, mediapipe.ArtifactStatusReady, artifact.Status)
	assert.Equal(t, int64(len(pngBytes)), artifact.SizeBytes)

	sum := sha256.Sum256(pngBytes)
	assert.Equal(t, hex.EncodeToString(sum[:]), artifact.Checksum)

	// Primary object and thumbnail both landed under deterministic keys.
	assert.Equal(t, env.keys.PrimaryKey(ownerID, artifact.ID, "pic.png"), artifact.ObjectKey)
	assert.Equal(t, env.keys.ThumbnailKey(ownerID, artifact.ID), artifact.ThumbnailKey)
	_, err = env.store.GetObjectMeta(ctx, artifact.ObjectKey)
	require.NoError(t, err)
	_, err = env.store.GetObjectMeta(ctx, artifact.ThumbnailKey)
	require.NoError(t, err)

	details, err := env.svc.GetArtifactDetails(ctx, artifact.ID)
	require.NoError(t, err)
	require.NotNil(t, details.Metadata)
	require.NotNil(t, details.Metadata.Image)
	assert.Equal(t, 64, details.Metadata.Image.Width)
	assert.Equal(t, 48, details.Metadata.Image.Height)
	assert.Equal(t, "image/png", details.Metadata.MimeType)
	assert.NotEmpty(t, details.URL)
	assert.NotEmpty(t, details.ThumbnailURL)
}

func TestImportRejectedSourceIsTerminal(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()

	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer src.Close()

	receipt, err := env.svc.RequestImport(ctx, mediapipe.ImportRequest{
		OwnerID:   uuid.New(),
		Kind:      mediapipe.KindImage,
		SourceURL: src.URL + "/gone.png",
	})
	require.NoError(t, err)

	job, err := env.queue.Claim(queue.QueueDefault)
	require.NoError(t, err)
	require.NotNil(t, job)

	err = env.pipeline.ProcessImport(ctx, job)
	require.Error(t, err)
	assert.True(t, queue.IsTerminal(err), "4xx source answers must not be retried")

	artifact, err := env.svc.GetArtifact(ctx, receipt.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, mediapipe.ArtifactStatusFailed, artifact.Status)
	assert.Contains(t, artifact.ErrorNote(), "404")
}

func TestImportUnreachableSourceRetries(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()

	// A server that is already gone.
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := src.URL
	src.Close()

	receipt, err := env.svc.RequestImport(ctx, mediapipe.ImportRequest{
		OwnerID:   uuid.New(),
		Kind:      mediapipe.KindImage,
		SourceURL: deadURL + "/pic.png",
	})
	require.NoError(t, err)

	job, err := env.queue.Claim(queue.QueueDefault)
	require.NoError(t, err)
	require.NotNil(t, job)

	err = env.pipeline.ProcessImport(ctx, job)
	require.Error(t, err)
	assert.False(t, queue.IsTerminal(err), "transport failures are retryable")

	// The artifact stays in flight for the next attempt.
	artifact, err := env.svc.GetArtifact(ctx, receipt.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, mediapipe.ArtifactStatusUploading, artifact.Status)
}

func TestImportFailsArtifactOnFinalAttempt(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()

	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := src.URL
	src.Close()

	receipt, err := env.svc.RequestImport(ctx, mediapipe.ImportRequest{
		OwnerID:   uuid.New(),
		Kind:      mediapipe.KindImage,
		SourceURL: deadURL + "/pic.png",
	})
	require.NoError(t, err)

	job, err := env.queue.Claim(queue.QueueDefault)
	require.NoError(t, err)
	require.NotNil(t, job)

	// Simulate the last delivery of the job's retry budget.
	job.Attempt = job.MaxRetries + 1

	err = env.pipeline.ProcessImport(ctx, job)
	require.Error(t, err)

	// The record must not stick in uploading after the queue gives up.
	artifact, err := env.svc.GetArtifact(ctx, receipt.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, mediapipe.ArtifactStatusFailed, artifact.Status)
	assert.Contains(t, artifact.ErrorNote(), "retries exhausted")
}

func TestImportRedeliveryAfterReadyIsNoop(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()

	pngBytes := encodePNG(t, 32, 32)
	var hits atomic.Int32
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(pngBytes)
	}))
	defer src.Close()

	_, err := env.svc.RequestImport(ctx, mediapipe.ImportRequest{
		OwnerID:   uuid.New(),
		Kind:      mediapipe.KindImage,
		SourceURL: src.URL + "/pic.png",
	})
	require.NoError(t, err)

	job, err := env.queue.Claim(queue.QueueDefault)
	require.NoError(t, err)
	require.NoError(t, env.pipeline.ProcessImport(ctx, job))
	require.NoError(t, env.pipeline.ProcessImport(ctx, job))

	assert.Equal(t, int32(1), hits.Load(), "a redelivered job for a ready artifact must not refetch the source")
}

func TestImportThumbnailFailureIsNonFatal(t *testing.T) {
	media := &fakeMediaInspector{
		info: &inspector.MediaInfo{
			MimeType: "video/mp4",
			Video:    &mediapipe.VideoInfo{DurationSeconds: 4, Width: 640, Height: 360, FrameRate: 25},
		},
		thumbErr: assert.AnError,
	}
	env := setupPipeline(t, worker.WithMediaInspector(media))
	ctx := context.Background()

	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("video-bytes"))
	}))
	defer src.Close()

	receipt, err := env.svc.RequestImport(ctx, mediapipe.ImportRequest{
		OwnerID:   uuid.New(),
		Kind:      mediapipe.KindVideo,
		SourceURL: src.URL + "/clip.mp4",
	})
	require.NoError(t, err)

	job, err := env.queue.Claim(queue.QueueDefault)
	require.NoError(t, err)
	require.NoError(t, env.pipeline.ProcessImport(ctx, job))

	details, err := env.svc.GetArtifactDetails(ctx, receipt.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, mediapipe.ArtifactStatusReady, details.Artifact.Status)
	assert.Empty(t, details.Artifact.ThumbnailKey)
	assert.Empty(t, details.ThumbnailURL)

	// The failure is recorded on the metadata, not swallowed.
	require.NotNil(t, details.Metadata)
	assert.NotEmpty(t, details.Metadata.Extra[mediapipe.MetaThumbnailError])
}

func TestImportUnreadableMediaIsTerminal(t *testing.T) {
	media := &fakeMediaInspector{inspectErr: mediapipe.ErrUnreadableMedia}
	env := setupPipeline(t, worker.WithMediaInspector(media))
	ctx := context.Background()

	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not-a-video"))
	}))
	defer src.Close()

	receipt, err := env.svc.RequestImport(ctx, mediapipe.ImportRequest{
		OwnerID:   uuid.New(),
		Kind:      mediapipe.KindVideo,
		SourceURL: src.URL + "/clip.mp4",
	})
	require.NoError(t, err)

	job, err := env.queue.Claim(queue.QueueDefault)
	require.NoError(t, err)

	err = env.pipeline.ProcessImport(ctx, job)
	require.Error(t, err)
	assert.True(t, queue.IsTerminal(err), "unparseable media must not be retried")

	artifact, err := env.svc.GetArtifact(ctx, receipt.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, mediapipe.ArtifactStatusFailed, artifact.Status)
	assert.Contains(t, artifact.ErrorNote(), "unreadable")
}

func makeReadyClip(t *testing.T, env *pipelineEnv, ownerID uuid.UUID, duration float64) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	receipt, err := env.svc.RequestImport(ctx, mediapipe.ImportRequest{
		OwnerID:   ownerID,
		Name:      "clip.mp4",
		Kind:      mediapipe.KindVideo,
		SourceURL: "https://example.com/clip.mp4",
	})
	require.NoError(t, err)
	_, err = env.svc.BeginImport(ctx, receipt.ArtifactID)
	require.NoError(t, err)

	key := env.keys.PrimaryKey(ownerID, receipt.ArtifactID, "clip.mp4")
	require.NoError(t, env.store.Upload(ctx, bytes.NewReader([]byte("clip-bytes")), mediapipe.UploadParams{
		ObjectKey: key,
		MimeType:  "video/mp4",
	}))

	require.NoError(t, env.svc.FinalizeImport(ctx, mediapipe.FinalizeImportRequest{
		ArtifactID: receipt.ArtifactID,
		ObjectKey:  key,
		Checksum:   "clip-checksum",
		SizeBytes:  10,
		MimeType:   "video/mp4",
		FileName:   "clip.mp4",
		Video:      &mediapipe.VideoInfo{DurationSeconds: duration, Width: 1920, Height: 1080, FrameRate: 30},
	}))
	return receipt.ArtifactID
}

func TestComposeEndToEnd(t *testing.T) {
	media := &fakeMediaInspector{
		info: &inspector.MediaInfo{
			MimeType: "video/mp4",
			Video:    &mediapipe.VideoInfo{DurationSeconds: 8, Width: 1280, Height: 720, FrameRate: 30},
		},
	}
	renderer := &fakeRenderer{}
	env := setupPipeline(t, worker.WithMediaInspector(media), worker.WithRenderer(renderer))
	ctx := context.Background()
	ownerID := uuid.New()

	clipA := makeReadyClip(t, env, ownerID, 10)
	clipB := makeReadyClip(t, env, ownerID, 6)

	receipt, err := env.svc.CreateComposition(ctx, mediapipe.CreateCompositionRequest{
		OwnerID: ownerID,
		Name:    "montage",
		Timeline: []mediapipe.Clip{
			{ArtifactID: clipA, StartSeconds: 1, EndSeconds: 5},
			{ArtifactID: clipB}, // open-ended, resolved from metadata
		},
		Output: mediapipe.OutputSettings{Width: 1280, Height: 720, FrameRate: 30},
	})
	require.NoError(t, err)

	job, err := env.queue.Claim(queue.QueueDefault)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queue.KindCompose, job.Kind)
	require.NoError(t, env.pipeline.ProcessCompose(ctx, job))

	// The renderer saw both clips, with the open-ended range resolved.
	require.Len(t, renderer.rendered, 1)
	require.Len(t, renderer.rendered[0], 2)
	assert.Equal(t, 1.0, renderer.rendered[0][0].StartSeconds)
	assert.Equal(t, 5.0, renderer.rendered[0][0].EndSeconds)
	assert.Equal(t, 6.0, renderer.rendered[0][1].EndSeconds)

	comp, err := env.svc.GetComposition(ctx, receipt.CompositionID)
	require.NoError(t, err)
	assert.Equal(t, mediapipe.CompositionStatusCompleted, comp.Status)
	assert.Equal(t, 100.0, comp.Progress)
	require.NotNil(t, comp.OutputArtifactID)
	assert.Equal(t, mediapipe.CompositionOutputID(comp.ID), *comp.OutputArtifactID)

	output, err := env.svc.GetArtifact(ctx, *comp.OutputArtifactID)
	require.NoError(t, err)
	assert.Equal(t, mediapipe.ArtifactStatusReady, output.Status)
	assert.Equal(t, ownerID, output.OwnerID)

	link, err := env.svc.GetCompositionDownload(ctx, comp.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, link.URL)
}

func TestComposeDeletedClipIsTerminal(t *testing.T) {
	media := &fakeMediaInspector{
		info: &inspector.MediaInfo{
			MimeType: "video/mp4",
			Video:    &mediapipe.VideoInfo{DurationSeconds: 8, Width: 1280, Height: 720},
		},
	}
	env := setupPipeline(t, worker.WithMediaInspector(media), worker.WithRenderer(&fakeRenderer{}))
	ctx := context.Background()
	ownerID := uuid.New()

	clipID := makeReadyClip(t, env, ownerID, 10)
	receipt, err := env.svc.CreateComposition(ctx, mediapipe.CreateCompositionRequest{
		OwnerID:  ownerID,
		Timeline: []mediapipe.Clip{{ArtifactID: clipID, StartSeconds: 0, EndSeconds: 5}},
		Output:   mediapipe.OutputSettings{Width: 640, Height: 360},
	})
	require.NoError(t, err)

	// The clip vanishes between enqueue and claim.
	require.NoError(t, env.svc.DeleteArtifact(ctx, clipID))

	job, err := env.queue.Claim(queue.QueueDefault)
	require.NoError(t, err)
	require.NotNil(t, job)

	err = env.pipeline.ProcessCompose(ctx, job)
	require.Error(t, err)
	assert.True(t, queue.IsTerminal(err))

	comp, err := env.svc.GetComposition(ctx, receipt.CompositionID)
	require.NoError(t, err)
	assert.Equal(t, mediapipe.CompositionStatusFailed, comp.Status)
}

func TestComposeRedeliveryAfterCompletedIsNoop(t *testing.T) {
	media := &fakeMediaInspector{
		info: &inspector.MediaInfo{
			MimeType: "video/mp4",
			Video:    &mediapipe.VideoInfo{DurationSeconds: 5, Width: 640, Height: 360},
		},
	}
	renderer := &fakeRenderer{}
	env := setupPipeline(t, worker.WithMediaInspector(media), worker.WithRenderer(renderer))
	ctx := context.Background()
	ownerID := uuid.New()

	clipID := makeReadyClip(t, env, ownerID, 10)
	_, err := env.svc.CreateComposition(ctx, mediapipe.CreateCompositionRequest{
		OwnerID:  ownerID,
		Timeline: []mediapipe.Clip{{ArtifactID: clipID, StartSeconds: 0, EndSeconds: 5}},
		Output:   mediapipe.OutputSettings{Width: 640, Height: 360},
	})
	require.NoError(t, err)

	job, err := env.queue.Claim(queue.QueueDefault)
	require.NoError(t, err)
	require.NoError(t, env.pipeline.ProcessCompose(ctx, job))
	require.NoError(t, env.pipeline.ProcessCompose(ctx, job))

	assert.Len(t, renderer.rendered, 1, "a completed composition must not be rendered again")
}
