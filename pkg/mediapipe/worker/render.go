package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

// ClipSource is a timeline clip resolved to a local file with a concrete
// time range.
type ClipSource struct {
	Path         string
	StartSeconds float64
	EndSeconds   float64
}

// Duration returns the clip's playable length in seconds.
func (c ClipSource) Duration() float64 {
	return c.EndSeconds - c.StartSeconds
}

// Renderer concatenates trimmed clips into a single output file.
type Renderer interface {
	// Render writes the rendered timeline to outPath. The progress
	// callback receives values in [0,100) as rendering advances; it may
	// be nil.
	Render(ctx context.Context, clips []ClipSource, output mediapipe.OutputSettings, outPath string, progress func(float64)) error
}

// FFmpegRenderer renders compositions with a single ffmpeg invocation
// using a trim/scale/concat filter graph.
type FFmpegRenderer struct{}

// NewFFmpegRenderer creates the default renderer. ffmpeg must be on PATH.
func NewFFmpegRenderer() *FFmpegRenderer { return &FFmpegRenderer{} }

func (r *FFmpegRenderer) Render(ctx context.Context, clips []ClipSource, output mediapipe.OutputSettings, outPath string, progress func(float64)) error {
	if len(clips) == 0 {
		return fmt.Errorf("%w: nothing to render", mediapipe.ErrInvalidRequest)
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	frameRate := output.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}

	args := []string{"-hide_banner", "-nostats"}
	for _, clip := range clips {
		args = append(args, "-i", clip.Path)
	}

	args = append(args,
		"-filter_complex", buildFilterGraph(clips, output, frameRate),
		"-map", "[outv]",
		"-map", "[outa]",
		"-pix_fmt", "yuv420p",
		"-progress", "pipe:1",
		"-y",
		outPath,
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	total := 0.0
	for _, clip := range clips {
		total += clip.Duration()
	}
	trackProgress(stdout, total, progress)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: ffmpeg killed after deadline", mediapipe.ErrProcessingTimeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("ffmpeg render failed: %w: %s", err, tailOf(stderr.String()))
		}
		return fmt.Errorf("ffmpeg render failed: %w", err)
	}

	return nil
}

// buildFilterGraph trims each input to its clip range, normalizes it to
// the output geometry (scale to fit, pad to exact size), then concats
// video and audio into [outv]/[outa].
func buildFilterGraph(clips []ClipSource, output mediapipe.OutputSettings, frameRate float64) string {
	var b strings.Builder
	for i, clip := range clips {
		fmt.Fprintf(&b,
			"[%d:v]trim=start=%g:end=%g,setpts=PTS-STARTPTS,"+
				"scale=%d:%d:force_original_aspect_ratio=decrease,"+
				"pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%g[v%d];",
			i, clip.StartSeconds, clip.EndSeconds,
			output.Width, output.Height,
			output.Width, output.Height, frameRate, i)
		fmt.Fprintf(&b,
			"[%d:a]atrim=start=%g:end=%g,asetpts=PTS-STARTPTS[a%d];",
			i, clip.StartSeconds, clip.EndSeconds, i)
	}
	for i := range clips {
		fmt.Fprintf(&b, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=1[outv][outa]", len(clips))
	return b.String()
}

// trackProgress parses ffmpeg's key=value progress stream and reports
// percentage of the expected total duration. It drains stdout fully so
// ffmpeg never blocks on a full pipe.
func trackProgress(stdout interface{ Read([]byte) (int, error) }, totalSeconds float64, progress func(float64)) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if progress == nil || totalSeconds <= 0 {
			continue
		}
		key, value, found := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !found || key != "out_time_us" {
			continue
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		pct := float64(us) / 1e6 / totalSeconds * 100
		if pct > 99 {
			pct = 99
		}
		if pct > 0 {
			progress(pct)
		}
	}
}

func tailOf(s string) string {
	const max = 512
	s = strings.TrimSpace(s)
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	return s
}
