package notify

import (
	"context"
	"sync"
)

// Memory is an in-process notifier for tests and single-process
// deployments. Slow subscribers drop events rather than block the
// publisher.
type Memory struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

// NewMemory creates an in-process notifier.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]chan Event)}
}

// Publish implements Notifier.
func (m *Memory) Publish(ctx context.Context, ev Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.subs[ev.SubjectID] {
		select {
		case ch <- ev:
		default:
			// at-most-once: drop rather than block
		}
	}
	return nil
}

// Subscribe implements Subscriber.
func (m *Memory) Subscribe(ctx context.Context, subjectID string) (<-chan Event, func(), error) {
	ch := make(chan Event, 16)

	m.mu.Lock()
	m.subs[subjectID] = append(m.subs[subjectID], ch)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		chans := m.subs[subjectID]
		for i, c := range chans {
			if c == ch {
				m.subs[subjectID] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
		if len(m.subs[subjectID]) == 0 {
			delete(m.subs, subjectID)
		}
	}
	return ch, cancel, nil
}
