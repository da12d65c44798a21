package mediapipe

import "fmt"

// artifactTransitions enumerates the allowed artifact state machine:
// pending -> uploading -> {ready | failed}, with same-state writes
// permitted so a redelivered job can safely re-enter its current stage.
var artifactTransitions = map[ArtifactStatus][]ArtifactStatus{
	ArtifactStatusPending:   {ArtifactStatusPending, ArtifactStatusUploading, ArtifactStatusFailed},
	ArtifactStatusUploading: {ArtifactStatusUploading, ArtifactStatusReady, ArtifactStatusFailed},
	ArtifactStatusReady:     {ArtifactStatusReady},
	ArtifactStatusFailed:    {ArtifactStatusFailed, ArtifactStatusUploading},
}

// compositionTransitions mirrors the artifact machine with composition
// labels: pending -> queued -> processing -> {completed | failed}.
var compositionTransitions = map[CompositionStatus][]CompositionStatus{
	CompositionStatusPending:    {CompositionStatusPending, CompositionStatusQueued, CompositionStatusFailed},
	CompositionStatusQueued:     {CompositionStatusQueued, CompositionStatusProcessing, CompositionStatusFailed},
	CompositionStatusProcessing: {CompositionStatusProcessing, CompositionStatusCompleted, CompositionStatusFailed},
	CompositionStatusCompleted:  {CompositionStatusCompleted},
	CompositionStatusFailed:     {CompositionStatusFailed, CompositionStatusProcessing},
}

// ValidateArtifactTransition returns an error when moving an artifact
// from one status to another is not allowed by the state machine.
func ValidateArtifactTransition(from, to ArtifactStatus) error {
	allowed, ok := artifactTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %s", ErrInvalidArtifactStatus, from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidArtifactStatus, from, to)
}

// ValidateCompositionTransition returns an error when moving a
// composition from one status to another is not allowed.
func ValidateCompositionTransition(from, to CompositionStatus) error {
	allowed, ok := compositionTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %s", ErrInvalidCompositionStatus, from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidCompositionStatus, from, to)
}

// canDownloadArtifact checks if an artifact can be downloaded based on its status.
func canDownloadArtifact(status ArtifactStatus) (bool, error) {
	switch status {
	case ArtifactStatusReady:
		return true, nil
	case ArtifactStatusPending:
		return false, fmt.Errorf("%w: import has not started yet (status: %s)", ErrArtifactNotReady, status)
	case ArtifactStatusUploading:
		return false, fmt.Errorf("%w: processing is still in progress (status: %s)", ErrArtifactNotReady, status)
	case ArtifactStatusFailed:
		return false, fmt.Errorf("%w: processing failed (status: %s)", ErrArtifactNotReady, status)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidArtifactStatus, status)
	}
}

// canDownloadComposition checks if a composition output can be downloaded.
func canDownloadComposition(status CompositionStatus) (bool, error) {
	switch status {
	case CompositionStatusCompleted:
		return true, nil
	case CompositionStatusPending, CompositionStatusQueued, CompositionStatusProcessing:
		return false, fmt.Errorf("%w: render is still in progress (status: %s)", ErrArtifactNotReady, status)
	case CompositionStatusFailed:
		return false, fmt.Errorf("%w: render failed (status: %s)", ErrArtifactNotReady, status)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidCompositionStatus, status)
	}
}

// terminal reports whether an artifact status is terminal.
func (s ArtifactStatus) terminal() bool {
	return s == ArtifactStatusReady || s == ArtifactStatusFailed
}

// terminal reports whether a composition status is terminal.
func (s CompositionStatus) terminal() bool {
	return s == CompositionStatusCompleted || s == CompositionStatusFailed
}
