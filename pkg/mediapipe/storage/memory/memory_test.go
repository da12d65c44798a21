package memory

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

func TestUploadDownloadRoundTrip(t *testing.T) {
	b := New()
	ctx := context.Background()
	key := "owners/o1/artifacts/a1/primary"

	require.NoError(t, b.Upload(ctx, bytes.NewReader([]byte("payload")), mediapipe.UploadParams{
		ObjectKey: key,
		MimeType:  "video/mp4",
	}))

	rc, err := b.Download(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	meta, err := b.GetObjectMeta(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(7), meta.Size)
	assert.Equal(t, "video/mp4", meta.ContentType)
}

func TestDownloadMissingObject(t *testing.T) {
	b := New()
	_, err := b.Download(context.Background(), "missing")
	assert.Error(t, err)
}

func TestDeleteRemovesObject(t *testing.T) {
	b := New()
	ctx := context.Background()
	key := "k"

	require.NoError(t, b.Upload(ctx, bytes.NewReader([]byte("x")), mediapipe.UploadParams{ObjectKey: key}))
	require.NoError(t, b.Delete(ctx, key))
	assert.Error(t, b.Delete(ctx, key))
}

func TestURLsRequireExistingObject(t *testing.T) {
	b := New()
	ctx := context.Background()

	_, err := b.GetDownloadURL(ctx, "missing", "")
	assert.Error(t, err)

	require.NoError(t, b.Upload(ctx, bytes.NewReader([]byte("x")), mediapipe.UploadParams{ObjectKey: "k"}))

	u, err := b.GetDownloadURL(ctx, "k", "file.mp4")
	require.NoError(t, err)
	assert.Equal(t, "memory://k?filename=file.mp4", u)

	p, err := b.GetPreviewURL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "memory://k", p)
}
