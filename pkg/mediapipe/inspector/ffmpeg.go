package inspector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

const (
	defaultProbeTimeout = 5 * time.Minute
	defaultThumbTimeout = time.Minute

	// Thumbnails take the first frame so short clips are never skipped
	// past their own duration; SetSeekTime opts into skipping intros.
	defaultSeekSeconds = 0
)

// FFmpeg probes video and audio files with ffprobe and renders video
// thumbnails with ffmpeg. Both binaries must be on PATH.
type FFmpeg struct {
	probeTimeout time.Duration
	thumbTimeout time.Duration
	seekSeconds  int
}

// NewFFmpeg creates an FFmpeg inspector with default timeouts.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{
		probeTimeout: defaultProbeTimeout,
		thumbTimeout: defaultThumbTimeout,
		seekSeconds:  defaultSeekSeconds,
	}
}

// SetSeekTime sets the number of seconds skipped before selecting a
// thumbnail frame.
func (f *FFmpeg) SetSeekTime(seconds int) {
	if seconds >= 0 {
		f.seekSeconds = seconds
	}
}

// ffprobe JSON output shapes, limited to the fields we read.
type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
	BitRate      string `json:"bit_rate"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

// Inspect runs ffprobe on the file and maps the relevant stream into a
// MediaInfo for the artifact kind.
func (f *FFmpeg) Inspect(ctx context.Context, path string, kind mediapipe.ArtifactKind) (*MediaInfo, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, classifyToolError(ctx, "ffprobe", err)
	}

	var result probeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("%w: ffprobe output not parseable: %v", mediapipe.ErrUnreadableMedia, err)
	}

	switch kind {
	case mediapipe.KindVideo:
		return videoInfo(result)
	case mediapipe.KindAudio:
		return audioInfo(result)
	default:
		return nil, fmt.Errorf("%w: ffprobe does not handle %s artifacts", mediapipe.ErrUnreadableMedia, kind)
	}
}

func videoInfo(result probeResult) (*MediaInfo, error) {
	stream, ok := findStream(result.Streams, "video")
	if !ok {
		return nil, fmt.Errorf("%w: no video stream found", mediapipe.ErrUnreadableMedia)
	}

	info := &mediapipe.VideoInfo{
		Width:     stream.Width,
		Height:    stream.Height,
		Codec:     stream.CodecName,
		Container: containerName(result.Format.FormatName),
		FrameRate: parseFrameRate(stream.AvgFrameRate, stream.RFrameRate),
	}
	info.DurationSeconds = parseFloat(stream.Duration, parseFloat(result.Format.Duration, 0))
	info.BitRate = parseInt(stream.BitRate, parseInt(result.Format.BitRate, 0))

	if info.Width <= 0 || info.Height <= 0 || info.DurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: video stream has no usable dimensions or duration", mediapipe.ErrUnreadableMedia)
	}

	return &MediaInfo{MimeType: "video/" + info.Container, Video: info}, nil
}

func audioInfo(result probeResult) (*MediaInfo, error) {
	stream, ok := findStream(result.Streams, "audio")
	if !ok {
		return nil, fmt.Errorf("%w: no audio stream found", mediapipe.ErrUnreadableMedia)
	}

	info := &mediapipe.AudioInfo{
		Codec:     stream.CodecName,
		Container: containerName(result.Format.FormatName),
	}
	info.DurationSeconds = parseFloat(stream.Duration, parseFloat(result.Format.Duration, 0))
	info.BitRate = parseInt(stream.BitRate, parseInt(result.Format.BitRate, 0))

	if info.DurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: audio stream has no usable duration", mediapipe.ErrUnreadableMedia)
	}

	return &MediaInfo{MimeType: "audio/" + info.Container, Audio: info}, nil
}

// Thumbnail extracts a representative frame as a JPEG no wider than
// maxWidth, preserving aspect ratio.
func (f *FFmpeg) Thumbnail(ctx context.Context, inputPath, outputPath string, maxWidth int) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.thumbTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", f.thumbnailArgs(inputPath, outputPath, maxWidth)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if terr := classifyToolError(ctx, "ffmpeg", err); errors.Is(terr, mediapipe.ErrProcessingTimeout) {
			return terr
		}
		return fmt.Errorf("%w: ffmpeg: %v: %s", mediapipe.ErrThumbnailFailed, err, truncateOutput(out))
	}

	return nil
}

func (f *FFmpeg) thumbnailArgs(inputPath, outputPath string, maxWidth int) []string {
	videoFilter := "thumbnail"
	if maxWidth > 0 {
		// -2 keeps the height even, which libx264-family encoders require
		videoFilter = fmt.Sprintf("thumbnail,scale='min(%d,iw)':-2", maxWidth)
	}

	return []string{
		"-ss", strconv.Itoa(f.seekSeconds),
		"-i", inputPath,
		"-vf", videoFilter,
		"-frames:v", "1",
		"-pix_fmt", "yuvj420p",
		"-q:v", "2",
		"-y",
		outputPath,
	}
}

// classifyToolError maps a failed tool invocation onto the pipeline's
// error taxonomy. A context deadline is a timeout (retryable); any other
// nonzero exit means the input could not be read.
func classifyToolError(ctx context.Context, tool string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s killed after deadline", mediapipe.ErrProcessingTimeout, tool)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %s: %s", mediapipe.ErrUnreadableMedia, tool, truncateOutput(exitErr.Stderr))
	}
	return fmt.Errorf("%s failed: %w", tool, err)
}

func findStream(streams []probeStream, codecType string) (probeStream, bool) {
	for _, s := range streams {
		if s.CodecType == codecType {
			return s, true
		}
	}
	return probeStream{}, false
}

// containerName picks the first name from ffprobe's comma-separated
// format_name list (e.g. "mov,mp4,m4a,3gp,3g2,mj2").
func containerName(formatName string) string {
	if i := strings.IndexByte(formatName, ','); i >= 0 {
		return formatName[:i]
	}
	return formatName
}

// parseFrameRate parses ffprobe's rational frame rates ("30000/1001").
func parseFrameRate(rates ...string) float64 {
	for _, rate := range rates {
		num, den, found := strings.Cut(rate, "/")
		if !found {
			continue
		}
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 || n == 0 {
			continue
		}
		return n / d
	}
	return 0
}

func parseFloat(s string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return fallback
}

func parseInt(s string, fallback int64) int64 {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	return fallback
}

func truncateOutput(out []byte) string {
	const max = 512
	s := strings.TrimSpace(string(out))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
