package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const natsSubjectPrefix = "media.progress."

// NATS publishes progress events over a NATS connection, one subject per
// subject id, so any number of API instances can serve push subscriptions.
type NATS struct {
	nc *nats.Conn
}

// ConnectNATS dials the NATS server with reconnect-forever semantics.
func ConnectNATS(url string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATS{nc: nc}, nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn) *NATS { return &NATS{nc: nc} }

// Publish implements Notifier.
func (n *NATS) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.nc.Publish(natsSubjectPrefix+ev.SubjectID, b)
}

// Subscribe implements Subscriber. The channel is never closed: a
// message callback already in flight when cancel unsubscribes may still
// deliver, and a send on a closed channel would panic. Consumers stop on
// their own context and the channel is collected with them.
func (n *NATS) Subscribe(ctx context.Context, subjectID string) (<-chan Event, func(), error) {
	ch := make(chan Event, 16)

	sub, err := n.nc.Subscribe(natsSubjectPrefix+subjectID, func(msg *nats.Msg) {
		deliverEvent(ch, msg.Data)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", subjectID, err)
	}

	cancel := func() { _ = sub.Unsubscribe() }
	return ch, cancel, nil
}

// deliverEvent decodes a wire message and forwards it without blocking;
// events for slow consumers are dropped, matching the in-memory notifier.
func deliverEvent(ch chan<- Event, data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}

// Close drains the connection.
func (n *NATS) Close() {
	if n.nc != nil {
		_ = n.nc.Drain()
	}
}
