package mediapipe

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrInvalidRequest indicates bad input; surfaced synchronously, never enqueued
	ErrInvalidRequest = errors.New("invalid request")

	// ErrQueueUnavailable indicates the job queue backend rejected an enqueue
	ErrQueueUnavailable = errors.New("job queue unavailable")

	// ErrArtifactNotFound indicates an artifact was not found
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrCompositionNotFound indicates a composition was not found
	ErrCompositionNotFound = errors.New("composition not found")

	// ErrArtifactDeleted indicates an artifact was deleted while its job was in flight
	ErrArtifactDeleted = errors.New("artifact deleted mid-flight")

	// ErrArtifactNotReady indicates an artifact is not in a state ready for download
	ErrArtifactNotReady = errors.New("artifact not ready for download")

	// ErrClipNotReady indicates a composition clip references an artifact that is not ready
	ErrClipNotReady = errors.New("clip artifact not ready")

	// ErrSourceUnreachable indicates the remote source could not be fetched
	ErrSourceUnreachable = errors.New("source unreachable")

	// ErrSourceRejected indicates the remote source answered with a client
	// error; retrying cannot change the answer
	ErrSourceRejected = errors.New("source rejected download")

	// ErrDownloadTimeout indicates the source download exceeded its deadline
	ErrDownloadTimeout = errors.New("download timed out")

	// ErrUnreadableMedia indicates the inspector could not parse the media
	ErrUnreadableMedia = errors.New("unreadable media")

	// ErrThumbnailFailed indicates thumbnail extraction failed
	ErrThumbnailFailed = errors.New("thumbnail generation failed")

	// ErrProcessingTimeout indicates an external process exceeded its deadline
	ErrProcessingTimeout = errors.New("processing timed out")

	// ErrStorageUpload indicates an upload to the blob store failed
	ErrStorageUpload = errors.New("storage upload failed")

	// ErrInvalidArtifactStatus indicates a disallowed artifact status transition
	ErrInvalidArtifactStatus = errors.New("invalid artifact status")

	// ErrInvalidCompositionStatus indicates a disallowed composition status transition
	ErrInvalidCompositionStatus = errors.New("invalid composition status")

	// ErrCorrelationExists indicates a generation correlation id is already bound
	ErrCorrelationExists = errors.New("correlation id already bound")

	// ErrCorrelationNotFound indicates an unknown generation correlation id
	ErrCorrelationNotFound = errors.New("correlation id not found")
)

// IsRetryable reports whether a pipeline failure should be retried by the
// queue's backoff mechanism. Permanent classes (bad input, missing or
// deleted records, rejected or corrupt sources) return false and are
// never re-queued;
// everything else, including unclassified errors, is retried up to the
// job's retry limit.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrArtifactNotFound),
		errors.Is(err, ErrCompositionNotFound),
		errors.Is(err, ErrArtifactDeleted),
		errors.Is(err, ErrClipNotReady),
		errors.Is(err, ErrSourceRejected),
		errors.Is(err, ErrUnreadableMedia),
		errors.Is(err, ErrInvalidArtifactStatus),
		errors.Is(err, ErrInvalidCompositionStatus):
		return false
	}
	return true
}

// ArtifactError represents an error related to artifact operations
type ArtifactError struct {
	ArtifactID uuid.UUID
	Op         string
	Err        error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact operation %s failed for artifact %s: %v", e.Op, e.ArtifactID, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// CompositionError represents an error related to composition operations
type CompositionError struct {
	CompositionID uuid.UUID
	Op            string
	Err           error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition operation %s failed for composition %s: %v", e.Op, e.CompositionID, e.Err)
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob store operations
type StorageError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
