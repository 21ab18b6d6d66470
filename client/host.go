package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sync"

	"github.com/pthm/hxbind"
	"github.com/pthm/hxbind/lib/encoding"
	"github.com/pthm/hxbind/lib/wire"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a surface.
type State int

const (
	// Unmounted: no surface is bound to the name.
	Unmounted State = iota
	// Mounted: the surface exists and awaits its first successful render.
	Mounted
	// Rendered: at least one render succeeded; later renders are updates.
	Rendered
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounted:
		return "mounted"
	case Rendered:
		return "rendered"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var errNoEventChannel = errors.New("host has no event channel")

// HostOption configures a Host.
type HostOption func(*Host)

// WithSink sets the error sink for script, codec and event failures.
func WithSink(sink hxbind.ErrorSink) HostOption {
	return func(h *Host) {
		h.sink = sink
	}
}

// WithLogger sets the host logger.
func WithLogger(log logrus.FieldLogger) HostOption {
	return func(h *Host) {
		h.log = log
	}
}

// WithEvents sets the event channel behind Context.SetInput.
// The host closes it on Close.
func WithEvents(events *EventChannel) HostOption {
	return func(h *Host) {
		h.events = events
	}
}

type surface struct {
	mu        sync.Mutex
	name      string
	container Container
	width     int
	height    int
	state     State
	renders   int
}

// Host receives render messages and drives rendering scripts against
// mounted surfaces.
//
// Updates to one surface run one at a time; different surfaces update
// independently. A script must not call back into the Host for its own
// surface (Resize, Unmount) while rendering.
type Host struct {
	mu       sync.Mutex
	scripts  map[string]Script
	surfaces map[string]*surface
	buffered map[string]wire.RenderMessage
	last     map[string]uint64 // highest accepted token per name, kept across Unmount
	closed   bool

	events *EventChannel
	sink   hxbind.ErrorSink
	log    logrus.FieldLogger
}

// NewHost creates a host with no surfaces.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		scripts:  make(map[string]Script),
		surfaces: make(map[string]*surface),
		buffered: make(map[string]wire.RenderMessage),
		last:     make(map[string]uint64),
		sink:     hxbind.Discard,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		h.log = l
	}
	return h
}

// Register makes script available under the renderer reference ref.
func (h *Host) Register(ref string, script Script) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scripts[ref] = script
}

// Mount binds a surface to name. A render buffered while the name had no
// surface is applied immediately.
func (h *Host) Mount(name string, container Container, width, height int) error {
	s := &surface{name: name, container: container, width: width, height: height, state: Mounted}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	if _, ok := h.surfaces[name]; ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSurfaceMounted, name)
	}
	h.surfaces[name] = s
	msg, pending := h.buffered[name]
	delete(h.buffered, name)
	h.mu.Unlock()

	h.log.WithField("binding", name).Debug("surface mounted")
	if pending {
		h.apply(s, msg)
	}
	return nil
}

// Resize updates the dimensions passed to later renders.
func (h *Host) Resize(name string, width, height int) error {
	s, ok := h.surface(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSurfaceNotFound, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
	return nil
}

// Unmount removes the surface bound to name and reports whether one was.
func (h *Host) Unmount(name string) bool {
	h.mu.Lock()
	s, ok := h.surfaces[name]
	delete(h.surfaces, name)
	h.mu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	s.state = Unmounted
	s.mu.Unlock()
	h.log.WithField("binding", name).Debug("surface unmounted")
	return true
}

// State returns the lifecycle state of the surface bound to name.
func (h *Host) State(name string) State {
	s, ok := h.surface(name)
	if !ok {
		return Unmounted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Renders returns how many script invocations succeeded for name.
func (h *Host) Renders(name string) int {
	s, ok := h.surface(name)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

// OnMessage handles one render message. Messages for names without a
// surface are buffered (newest only) until Mount. Messages whose token is
// not newer than the last one accepted for the name are dropped, even
// across Unmount and Mount.
func (h *Host) OnMessage(msg wire.RenderMessage) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	s, ok := h.surfaces[msg.Binding]
	if !ok {
		if last, seen := h.last[msg.Binding]; seen && msg.Token <= last {
			h.mu.Unlock()
			return
		}
		if cur, buffered := h.buffered[msg.Binding]; !buffered || msg.Token > cur.Token {
			h.buffered[msg.Binding] = msg
		}
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	h.apply(s, msg)
}

// Run feeds messages from src into OnMessage until src closes (nil) or ctx
// ends (ctx.Err()).
func (h *Host) Run(ctx context.Context, src <-chan wire.RenderMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-src:
			if !ok {
				return nil
			}
			h.OnMessage(msg)
		}
	}
}

// Close tears the host down: buffered messages are dropped, every surface
// is unmounted, and the event channel is closed.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.buffered = nil
	h.last = nil
	surfaces := h.surfaces
	h.surfaces = make(map[string]*surface)
	h.mu.Unlock()

	for _, s := range surfaces {
		s.mu.Lock()
		s.state = Unmounted
		s.mu.Unlock()
	}
	if h.events != nil {
		h.events.Close()
	}
}

func (h *Host) surface(name string) (*surface, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.surfaces[name]
	return s, ok
}

func (h *Host) script(ref string) (Script, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sc, ok := h.scripts[ref]
	return sc, ok
}

// apply runs one render against s. Lock order is s.mu then h.mu.
func (h *Host) apply(s *surface, msg wire.RenderMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := h.log.WithFields(logrus.Fields{"binding": msg.Binding, "token": msg.Token})

	if s.state == Unmounted {
		log.Debug("render dropped: surface removed")
		return
	}
	if last, ok := h.accept(msg.Binding, msg.Token); !ok {
		log.WithField("last", last).Debug("render dropped: superseded")
		return
	}

	script, ok := h.script(msg.Renderer)
	if !ok {
		h.sink.Report(&ScriptInvocationError{Binding: msg.Binding, Renderer: msg.Renderer, Token: msg.Token, Err: ErrUnknownRenderer})
		return
	}

	payload, err := encoding.Decode(msg.Payload)
	if err != nil {
		h.sink.Report(fmt.Errorf("render %q token %d: %w", msg.Binding, msg.Token, err))
		return
	}

	ctx := &Context{
		Binding:     msg.Binding,
		Width:       pick(s.width, msg.Width),
		Height:      pick(s.height, msg.Height),
		Container:   s.container,
		Initialized: s.state == Rendered,
		Options:     maps.Clone(msg.Options),
		Token:       msg.Token,
		emit:        h.emit,
	}

	if err := invoke(script, payload, ctx); err != nil {
		h.sink.Report(&ScriptInvocationError{Binding: msg.Binding, Renderer: msg.Renderer, Token: msg.Token, Err: err})
		return
	}

	s.state = Rendered
	s.renders++
	log.WithField("initialized", ctx.Initialized).Debug("rendered")
}

// accept records token as the newest for name unless an equal or newer
// one was already accepted. It returns the previous token on rejection.
func (h *Host) accept(name string, token uint64) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, false
	}
	if last, seen := h.last[name]; seen && token <= last {
		return last, false
	}
	h.last[name] = token
	return 0, true
}

func (h *Host) emit(name string, value any, mode wire.DeliveryMode) {
	if h.events == nil {
		h.sink.Report(&hxbind.DeliveryError{Kind: wire.KindEvent, Name: name, Err: errNoEventChannel})
		return
	}
	h.events.Emit(name, value, mode)
}

func invoke(script Script, payload any, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return script.Render(payload, ctx)
}

func pick(surfaceDim, msgDim int) int {
	if surfaceDim > 0 {
		return surfaceDim
	}
	return msgDim
}
