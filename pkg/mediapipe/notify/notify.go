// Package notify fans out job and artifact state transitions to
// subscribers without the worker knowing who is listening. Delivery is
// best-effort, at-most-once per subscriber connection; the artifact
// repository remains the source of truth and clients that miss an update
// recover by polling.
package notify

import (
	"context"
	"time"
)

// SubjectKind identifies what an event is about.
type SubjectKind string

const (
	SubjectArtifact    SubjectKind = "artifact"
	SubjectComposition SubjectKind = "composition"
)

// Event is one state/progress update for a subject.
type Event struct {
	SubjectID   string      `json:"subject_id"`
	SubjectKind SubjectKind `json:"subject_kind"`
	Status      string      `json:"status"`
	Progress    *float64    `json:"progress_percent,omitempty"`
	Error       string      `json:"error,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Progress is a convenience for building the optional percentage field.
func Progress(pct float64) *float64 { return &pct }

// Notifier is the publish side.
type Notifier interface {
	// Publish sends an event; failures are best-effort and must not fail
	// the publishing pipeline stage.
	Publish(ctx context.Context, ev Event) error
}

// Subscriber is the receive side, keyed by subject id.
type Subscriber interface {
	// Subscribe returns a channel of events for one subject and a cancel
	// function releasing the subscription.
	Subscribe(ctx context.Context, subjectID string) (<-chan Event, func(), error)
}

// Noop discards all events.
type Noop struct{}

func (Noop) Publish(ctx context.Context, ev Event) error { return nil }
