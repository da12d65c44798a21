package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

// fetchResult describes a source file staged into the scratch directory.
type fetchResult struct {
	Path        string
	FileName    string
	ContentType string
	Checksum    string // hex sha256
	SizeBytes   int64
}

// fetchSource streams a remote source into destDir, hashing as it
// copies so the checksum never requires a second pass over the file.
func (p *Pipeline) fetchSource(ctx context.Context, sourceURL, destDir string) (*fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mediapipe.ErrSourceRejected, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// ok
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: source returned status %d", mediapipe.ErrSourceRejected, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: source returned status %d", mediapipe.ErrSourceUnreachable, resp.StatusCode)
	}

	fileName := sourceFileName(resp, sourceURL)
	destPath := filepath.Join(destDir, "source")

	out, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(out, io.TeeReader(resp.Body, hasher))
	if err != nil {
		out.Close()
		return nil, classifyFetchError(ctx, err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close scratch file: %w", err)
	}

	return &fetchResult{
		Path:        destPath,
		FileName:    fileName,
		ContentType: resp.Header.Get("Content-Type"),
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes:   size,
	}, nil
}

// classifyFetchError maps transport failures onto the error taxonomy:
// deadline expiry is a download timeout, everything else means the
// source was unreachable. Both are retryable.
func classifyFetchError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return fmt.Errorf("%w: %v", mediapipe.ErrDownloadTimeout, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: %v", mediapipe.ErrDownloadTimeout, err)
	}
	return fmt.Errorf("%w: %v", mediapipe.ErrSourceUnreachable, err)
}

// sourceFileName picks a filename from the Content-Disposition header
// or falls back to the URL path.
func sourceFileName(resp *http.Response, sourceURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return filepath.Base(name)
			}
		}
	}

	if u, err := url.Parse(sourceURL); err == nil {
		if name := path.Base(u.Path); name != "" && name != "/" && name != "." {
			return name
		}
	}
	return ""
}

// guessMimeType prefers the inspector's verdict over the origin's
// Content-Type header, which is frequently wrong or generic.
func guessMimeType(inspected, header string) string {
	if inspected != "" {
		return inspected
	}
	header = strings.TrimSpace(header)
	if i := strings.IndexByte(header, ';'); i >= 0 {
		header = header[:i]
	}
	if header == "" {
		return "application/octet-stream"
	}
	return header
}
