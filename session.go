package hxbind

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pthm/hxbind/lib/wire"
	"github.com/sirupsen/logrus"
)

// Graph is the reactive framework's invalidation engine, as seen from the
// bridge. NotifyInputChanged is called once per applied input event, on the
// session's sequential timeline; the graph decides which outputs to
// recompute and calls Session.OnRecompute for each.
//
// NotifyInputChanged must not call Session.Apply on the same session.
type Graph interface {
	NotifyInputChanged(ctx context.Context, name string)
}

// GraphFunc adapts a function to Graph.
type GraphFunc func(ctx context.Context, name string)

// NotifyInputChanged implements Graph.
func (f GraphFunc) NotifyInputChanged(ctx context.Context, name string) {
	f(ctx, name)
}

var nopGraph Graph = GraphFunc(func(context.Context, string) {})

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger. The session ID is added as a field.
func WithLogger(log logrus.FieldLogger) SessionOption {
	return func(s *Session) {
		s.log = log
	}
}

// WithSink sets the error sink.
func WithSink(sink ErrorSink) SessionOption {
	return func(s *Session) {
		s.sink = sink
	}
}

// WithTransport sets the render transport.
func WithTransport(t RenderTransport) SessionOption {
	return func(s *Session) {
		s.transport = t
	}
}

// WithGraph sets the reactive graph notified on input changes.
func WithGraph(g Graph) SessionOption {
	return func(s *Session) {
		s.graph = g
	}
}

// Session scopes every binding, input slot and transport of one client.
// Sessions share no mutable state; all session handles are explicit.
type Session struct {
	id     string
	log    logrus.FieldLogger
	sink   ErrorSink
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	transport RenderTransport
	graph     Graph
	bindings  map[string]*Binding
	seqs      map[string]uint64 // sequence high-water marks of removed bindings
	closed    bool

	// flow serializes input application and graph notification.
	flow sync.Mutex

	inputs     *InputRegistry
	render     *RenderChannel
	lastActive atomic.Int64
}

// NewSession creates a session with the given ID.
func NewSession(id string, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		ctx:      ctx,
		cancel:   cancel,
		graph:    nopGraph,
		sink:     Discard,
		bindings: make(map[string]*Binding),
		seqs:     make(map[string]uint64),
		inputs:   NewInputRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	s.log = s.log.WithField("session", id)
	s.render = &RenderChannel{session: s}
	s.touch()
	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() logrus.FieldLogger {
	return s.log
}

// Inputs returns the session's input registry.
func (s *Session) Inputs() *InputRegistry {
	return s.inputs
}

// Render returns the session's render channel.
func (s *Session) Render() *RenderChannel {
	return s.render
}

// SetTransport replaces the render transport.
func (s *Session) SetTransport(t RenderTransport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
}

// SetGraph replaces the reactive graph.
func (s *Session) SetGraph(g Graph) {
	if g == nil {
		g = nopGraph
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = g
}

// RegisterOutput declares an output and returns its binding.
// A name already bound in this session returns *DuplicateBindingError.
func (s *Session) RegisterOutput(name, renderer string, opts Options) (*Binding, error) {
	if name == "" {
		return nil, errors.New("hxbind: empty binding name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if _, exists := s.bindings[name]; exists {
		return nil, &DuplicateBindingError{Name: name}
	}

	b := &Binding{
		name:     name,
		renderer: renderer,
		options:  Options{},
		session:  s,
	}
	for k, v := range opts {
		b.options[k] = v
	}
	// Tokens for a name keep increasing across remove/re-register so a
	// client still holding the old surface does not treat new renders as stale.
	b.seq.Store(s.seqs[name])
	s.bindings[name] = b

	s.log.WithFields(logrus.Fields{"binding": name, "renderer": renderer}).Debug("output registered")
	return b, nil
}

// RemoveOutput destroys the binding for name. It reports whether one existed.
func (s *Session) RemoveOutput(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[name]
	if !ok {
		return false
	}
	s.seqs[name] = b.seq.Load()
	delete(s.bindings, name)
	return true
}

// Binding returns the active binding for name.
func (s *Session) Binding(name string) (*Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[name]
	return b, ok
}

// Bindings returns the active binding names, sorted.
func (s *Session) Bindings() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.bindings))
	for name := range s.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterInput declares an input and returns its handle.
func (s *Session) RegisterInput(name string) *SlotHandle {
	s.inputs.Register(name)
	return &SlotHandle{name: name, reg: s.inputs}
}

// OnRecompute publishes a freshly computed value for the named output.
func (s *Session) OnRecompute(ctx context.Context, name string, value any) error {
	b, ok := s.Binding(name)
	if !ok {
		if s.Closed() {
			return ErrSessionClosed
		}
		return &bindingError{name: name}
	}
	_, err := s.render.Publish(ctx, b, value)
	return err
}

// Apply feeds one input event into the session and, when the slot changed,
// notifies the reactive graph. It reports whether the event was applied.
func (s *Session) Apply(ctx context.Context, ev wire.InputEvent) (bool, error) {
	res, err := s.ApplyEvent(ctx, ev)
	return res.Applied, err
}

// ApplyEvent is Apply that also returns the input's revision as of the
// event, read before any later event can advance it.
func (s *Session) ApplyEvent(ctx context.Context, ev wire.InputEvent) (EventResult, error) {
	if err := ctx.Err(); err != nil {
		return EventResult{}, err
	}

	s.flow.Lock()
	defer s.flow.Unlock()

	if s.Closed() {
		return EventResult{}, ErrSessionClosed
	}
	s.touch()

	applied, err := s.inputs.Apply(ev)
	if err != nil {
		s.sink.Report(err)
		return EventResult{}, err
	}
	res := EventResult{Applied: applied, Revision: s.inputs.Revision(ev.Input)}

	log := s.log.WithFields(logrus.Fields{"input": ev.Input, "mode": ev.Mode})
	if !applied {
		log.Debug("input coalesced")
		return res, nil
	}
	log.WithField("revision", res.Revision).Debug("input applied")

	s.mu.RLock()
	g := s.graph
	s.mu.RUnlock()
	g.NotifyInputChanged(ctx, ev.Input)
	return res, nil
}

// SendEvent applies ev, so a Session can stand in for an event transport
// when client and server share a process.
func (s *Session) SendEvent(ctx context.Context, ev wire.InputEvent) error {
	_, err := s.Apply(ctx, ev)
	return err
}

// Close ends the session: pending renders are discarded, the transport is
// closed if it is an io.Closer, and later Publish/Apply calls fail with
// ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.bindings = make(map[string]*Binding)
	t := s.transport
	s.mu.Unlock()

	s.cancel()
	s.log.Debug("session closed")
	if c, ok := t.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// LastActive returns the time of the last publish or applied event.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Touch marks the session active (used by transports on stream reads).
func (s *Session) Touch() {
	s.touch()
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}
