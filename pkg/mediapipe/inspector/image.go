package inspector

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

// Image inspects and thumbnails image files in-process.
type Image struct{}

// NewImage creates an in-process image inspector.
func NewImage() *Image { return &Image{} }

// Inspect decodes just the image header to read dimensions and format.
func (i *Image) Inspect(ctx context.Context, path string, kind mediapipe.ArtifactKind) (*MediaInfo, error) {
	if kind != mediapipe.KindImage {
		return nil, fmt.Errorf("%w: image inspector does not handle %s artifacts", mediapipe.ErrUnreadableMedia, kind)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mediapipe.ErrUnreadableMedia, err)
	}

	info := &mediapipe.ImageInfo{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
	}
	return &MediaInfo{MimeType: "image/" + format, Image: info}, nil
}

// Thumbnail resizes the image to fit within maxWidth, never upscaling,
// and writes a JPEG.
func (i *Image) Thumbnail(ctx context.Context, inputPath, outputPath string, maxWidth int) error {
	src, err := imaging.Open(inputPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("%w: open: %v", mediapipe.ErrThumbnailFailed, err)
	}

	bounds := src.Bounds()
	if maxWidth > 0 && bounds.Dx() > maxWidth {
		src = imaging.Fit(src, maxWidth, bounds.Dy(), imaging.Lanczos)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %v", mediapipe.ErrThumbnailFailed, err)
	}
	if err := imaging.Save(src, outputPath, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("%w: save: %v", mediapipe.ErrThumbnailFailed, err)
	}
	return nil
}
