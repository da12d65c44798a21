// Package worker executes queued import and composition jobs. Handlers
// are idempotent with respect to queue redelivery: status transitions
// are validated by the service layer and storage keys are deterministic,
// so a replayed job converges on the same terminal state.
package worker

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/inspector"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/notify"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/objectkey"
	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe/queue"
)

const (
	defaultThumbWidth      = 480
	defaultDownloadTimeout = 10 * time.Minute
)

// Registry is the handler-registration side of a queue consumer.
type Registry interface {
	Handle(kind string, handler queue.Handler)
}

// MediaInspector probes and thumbnails video and audio files.
type MediaInspector interface {
	inspector.Inspector
	inspector.Thumbnailer
}

// Pipeline wires the service, blob store and media tools into queue
// handlers for import and composition jobs.
type Pipeline struct {
	svc        mediapipe.Service
	store      mediapipe.BlobStore
	keys       objectkey.Generator
	notifier   notify.Notifier
	client     *http.Client
	media      MediaInspector
	images     *inspector.Image
	renderer   Renderer
	logger     *slog.Logger
	scratchDir string
	thumbWidth int
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithHTTPClient sets the client used to fetch remote sources.
func WithHTTPClient(c *http.Client) PipelineOption {
	return func(p *Pipeline) { p.client = c }
}

// WithNotifier sets the progress notifier.
func WithNotifier(n notify.Notifier) PipelineOption {
	return func(p *Pipeline) { p.notifier = n }
}

// WithKeyGenerator sets the storage key strategy. It must match the one
// configured on the service so read-side URL minting finds the objects.
func WithKeyGenerator(g objectkey.Generator) PipelineOption {
	return func(p *Pipeline) { p.keys = g }
}

// WithRenderer sets the composition renderer.
func WithRenderer(r Renderer) PipelineOption {
	return func(p *Pipeline) { p.renderer = r }
}

// WithMediaInspector sets the video/audio inspector.
func WithMediaInspector(mi MediaInspector) PipelineOption {
	return func(p *Pipeline) { p.media = mi }
}

// WithScratchDir sets the directory for per-job temp files.
func WithScratchDir(dir string) PipelineOption {
	return func(p *Pipeline) { p.scratchDir = dir }
}

// WithThumbnailWidth sets the maximum thumbnail width in pixels.
func WithThumbnailWidth(w int) PipelineOption {
	return func(p *Pipeline) { p.thumbWidth = w }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a job pipeline over the given service and store.
func NewPipeline(svc mediapipe.Service, store mediapipe.BlobStore, opts ...PipelineOption) (*Pipeline, error) {
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	p := &Pipeline{
		svc:        svc,
		store:      store,
		keys:       objectkey.NewOwnerScoped(),
		notifier:   notify.Noop{},
		client:     &http.Client{Timeout: defaultDownloadTimeout},
		media:      inspector.NewFFmpeg(),
		images:     inspector.NewImage(),
		logger:     slog.Default(),
		scratchDir: os.TempDir(),
		thumbWidth: defaultThumbWidth,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.renderer == nil {
		p.renderer = NewFFmpegRenderer()
	}
	return p, nil
}

// Register installs the pipeline's handlers on a queue consumer.
func (p *Pipeline) Register(r Registry) {
	r.Handle(queue.KindImportVideo, queue.HandlerFunc(p.ProcessImport))
	r.Handle(queue.KindImportImage, queue.HandlerFunc(p.ProcessImport))
	r.Handle(queue.KindCompose, queue.HandlerFunc(p.ProcessCompose))
}

// finalAttempt reports whether this delivery is the job's last one.
// Attempt is 1-based, so a budget of N retries allows N+1 attempts.
func finalAttempt(job *queue.Job) bool {
	return job != nil && job.Attempt >= job.MaxRetries+1
}
