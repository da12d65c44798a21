// Package inspector extracts technical metadata from downloaded media
// files and renders their thumbnails. Video and audio go through the
// ffprobe/ffmpeg binaries; images are handled in-process.
package inspector

import (
	"context"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

// MediaInfo is the result of probing a local media file. Exactly one of
// Video, Image or Audio is set.
type MediaInfo struct {
	MimeType string
	Video    *mediapipe.VideoInfo
	Image    *mediapipe.ImageInfo
	Audio    *mediapipe.AudioInfo
}

// Inspector probes a local file for technical metadata.
type Inspector interface {
	// Inspect reads metadata from the file at path. An unreadable or
	// corrupt file yields an error wrapping mediapipe.ErrUnreadableMedia.
	Inspect(ctx context.Context, path string, kind mediapipe.ArtifactKind) (*MediaInfo, error)
}

// Thumbnailer renders a JPEG preview of a local media file.
type Thumbnailer interface {
	// Thumbnail writes a JPEG no wider than maxWidth to outputPath.
	Thumbnail(ctx context.Context, inputPath, outputPath string, maxWidth int) error
}
