package client

import (
	"maps"
	"sync"

	"github.com/pthm/hxbind"
)

// Call is one recorded script invocation.
type Call struct {
	Payload     any
	Binding     string
	Width       int
	Height      int
	Initialized bool
	Options     map[string]any
	Token       uint64
}

// RecordingScript is a Script that records every call. Fn, when set, runs
// after recording and its result is returned.
type RecordingScript struct {
	mu    sync.Mutex
	calls []Call

	Fn func(payload any, ctx *Context) error
}

// Render implements Script.
func (s *RecordingScript) Render(payload any, ctx *Context) error {
	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Payload:     payload,
		Binding:     ctx.Binding,
		Width:       ctx.Width,
		Height:      ctx.Height,
		Initialized: ctx.Initialized,
		Options:     maps.Clone(ctx.Options),
		Token:       ctx.Token,
	})
	fn := s.Fn
	s.mu.Unlock()

	if fn != nil {
		return fn(payload, ctx)
	}
	return nil
}

// Calls returns the recorded calls in order.
func (s *RecordingScript) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Loop connects a session and a host in one process: renders go through
// hxbind.Loopback and script events through an EventChannel whose sender
// is the session itself.
type Loop struct {
	Session *hxbind.Session
	Host    *Host
	Events  *EventChannel
}

// NewLoop attaches a new host to session. Errors from both directions go
// to sink.
func NewLoop(session *hxbind.Session, sink hxbind.ErrorSink, opts ...HostOption) *Loop {
	events := NewEventChannel(session, WithEventSink(sink))
	opts = append([]HostOption{WithSink(sink)}, opts...)
	opts = append(opts, WithEvents(events))
	host := NewHost(opts...)
	session.SetTransport(hxbind.Loopback(host))
	return &Loop{Session: session, Host: host, Events: events}
}

// Close shuts down the host, its event channel and the session.
func (l *Loop) Close() {
	l.Host.Close()
	l.Session.Close()
}
