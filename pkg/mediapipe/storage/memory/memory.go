package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

// Backend is an in-memory implementation of the mediapipe.BlobStore interface
type Backend struct {
	mu              sync.RWMutex
	objects         map[string][]byte
	objectsMimeType map[string]string
	updatedAt       map[string]time.Time
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects:         make(map[string][]byte),
		objectsMimeType: make(map[string]string),
		updatedAt:       make(map[string]time.Time),
	}
}

// Upload stores content directly, overwriting any previous object
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params mediapipe.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.ObjectKey] = data
	b.updatedAt[params.ObjectKey] = time.Now().UTC()
	if params.MimeType != "" {
		b.objectsMimeType[params.ObjectKey] = params.MimeType
	} else if _, exists := b.objectsMimeType[params.ObjectKey]; !exists {
		b.objectsMimeType[params.ObjectKey] = "application/octet-stream"
	}
	return nil
}

// Download streams content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, errors.New("object not found")
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return errors.New("object not found")
	}

	delete(b.objects, objectKey)
	delete(b.objectsMimeType, objectKey)
	delete(b.updatedAt, objectKey)
	return nil
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*mediapipe.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, errors.New("object not found")
	}

	return &mediapipe.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(data)),
		ContentType: b.objectsMimeType[objectKey],
		UpdatedAt:   b.updatedAt[objectKey],
	}, nil
}

// GetDownloadURL returns a synthetic URL. The memory backend has no HTTP
// surface; the URL is only useful for asserting key wiring in tests.
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, exists := b.objects[objectKey]; !exists {
		return "", errors.New("object not found")
	}
	if downloadFilename != "" {
		return fmt.Sprintf("memory://%s?filename=%s", objectKey, downloadFilename), nil
	}
	return "memory://" + objectKey, nil
}

// GetPreviewURL returns a synthetic URL for inline display
func (b *Backend) GetPreviewURL(ctx context.Context, objectKey string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, exists := b.objects[objectKey]; !exists {
		return "", errors.New("object not found")
	}
	return "memory://" + objectKey, nil
}
