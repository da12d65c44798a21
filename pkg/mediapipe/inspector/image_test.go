package inspector

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

func writeTestPNG(t *testing.T, dir string, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	path := filepath.Join(dir, "test.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestImageInspect(t *testing.T) {
	insp := NewImage()
	path := writeTestPNG(t, t.TempDir(), 800, 600)

	info, err := insp.Inspect(context.Background(), path, mediapipe.KindImage)
	require.NoError(t, err)
	require.NotNil(t, info.Image)
	assert.Equal(t, "image/png", info.MimeType)
	assert.Equal(t, 800, info.Image.Width)
	assert.Equal(t, 600, info.Image.Height)
	assert.Equal(t, "png", info.Image.Format)
}

func TestImageInspectRejectsWrongKind(t *testing.T) {
	insp := NewImage()
	path := writeTestPNG(t, t.TempDir(), 10, 10)

	_, err := insp.Inspect(context.Background(), path, mediapipe.KindVideo)
	assert.ErrorIs(t, err, mediapipe.ErrUnreadableMedia)
}

func TestImageInspectRejectsCorruptFile(t *testing.T) {
	insp := NewImage()
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := insp.Inspect(context.Background(), path, mediapipe.KindImage)
	assert.ErrorIs(t, err, mediapipe.ErrUnreadableMedia)
}

func TestImageThumbnailDownscales(t *testing.T) {
	insp := NewImage()
	dir := t.TempDir()
	src := writeTestPNG(t, dir, 800, 600)
	out := filepath.Join(dir, "thumb.jpg")

	require.NoError(t, insp.Thumbnail(context.Background(), src, out, 200))

	thumb, err := imaging.Open(out)
	require.NoError(t, err)
	assert.LessOrEqual(t, thumb.Bounds().Dx(), 200)
}

func TestImageThumbnailNeverUpscales(t *testing.T) {
	insp := NewImage()
	dir := t.TempDir()
	src := writeTestPNG(t, dir, 100, 80)
	out := filepath.Join(dir, "thumb.jpg")

	require.NoError(t, insp.Thumbnail(context.Background(), src, out, 480))

	thumb, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, 100, thumb.Bounds().Dx())
	assert.Equal(t, 80, thumb.Bounds().Dy())
}
