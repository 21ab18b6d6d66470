package hxbind

import (
	"context"
	"sync"

	"github.com/pthm/hxbind/lib/encoding"
	"github.com/pthm/hxbind/lib/wire"
)

// RecordingSink is an ErrorSink that keeps every report, for tests.
type RecordingSink struct {
	mu   sync.Mutex
	errs []error
}

// Report implements ErrorSink.
func (s *RecordingSink) Report(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// Errors returns the reported errors in order.
func (s *RecordingSink) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// Len returns the number of reports.
func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

// RecordingGraph is a Graph that records notifications and optionally
// recomputes through OnChange.
type RecordingGraph struct {
	mu       sync.Mutex
	notified []string

	// OnChange, if set, runs for every notification.
	OnChange func(ctx context.Context, name string)
}

// NotifyInputChanged implements Graph.
func (g *RecordingGraph) NotifyInputChanged(ctx context.Context, name string) {
	g.mu.Lock()
	g.notified = append(g.notified, name)
	fn := g.OnChange
	g.mu.Unlock()
	if fn != nil {
		fn(ctx, name)
	}
}

// Notified returns the notified input names in order.
func (g *RecordingGraph) Notified() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.notified...)
}

// Count returns how many times name was notified.
func (g *RecordingGraph) Count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, got := range g.notified {
		if got == name {
			n++
		}
	}
	return n
}

// RecordingTransport is a RenderTransport that keeps every message, and
// fails with Err when set.
type RecordingTransport struct {
	mu   sync.Mutex
	msgs []wire.RenderMessage
	Err  error
}

// SendRender implements RenderTransport.
func (t *RecordingTransport) SendRender(ctx context.Context, msg wire.RenderMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.msgs = append(t.msgs, msg)
	return nil
}

// Messages returns the sent messages in order.
func (t *RecordingTransport) Messages() []wire.RenderMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]wire.RenderMessage(nil), t.msgs...)
}

// TestEvent builds an InputEvent with value encoded by the codec.
// It panics on unsupported values.
func TestEvent(name string, value any, mode wire.DeliveryMode) wire.InputEvent {
	data, err := encoding.Encode(value)
	if err != nil {
		panic(err)
	}
	return wire.InputEvent{Input: name, Value: data, Mode: mode}
}

// DecodePayload decodes a render message payload, panicking on error.
func DecodePayload(msg wire.RenderMessage) any {
	v, err := encoding.Decode(msg.Payload)
	if err != nil {
		panic(err)
	}
	return v
}
