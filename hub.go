package hxbind

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pthm/hxbind/lib/encoding"
	"github.com/pthm/hxbind/lib/wire"
	"github.com/sirupsen/logrus"
)

// Setup prepares a new session: it registers the session's outputs and
// inputs and returns the reactive graph to notify on input changes.
type Setup func(s *Session) (Graph, error)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger handed to every session.
func WithHubLogger(log logrus.FieldLogger) HubOption {
	return func(h *Hub) {
		h.log = log
	}
}

// WithHubSink sets the error sink handed to every session.
func WithHubSink(sink ErrorSink) HubOption {
	return func(h *Hub) {
		h.sink = sink
	}
}

// WithSetup sets the per-session setup hook.
func WithSetup(setup Setup) HubOption {
	return func(h *Hub) {
		h.setup = setup
	}
}

// WithTTL sets how long a session may stay idle before Sweep ends it.
// Zero disables expiry.
func WithTTL(ttl time.Duration) HubOption {
	return func(h *Hub) {
		h.ttl = ttl
	}
}

// WithOutboxSize bounds the pending bindings per session outbox.
func WithOutboxSize(n int) HubOption {
	return func(h *Hub) {
		h.outboxSize = n
	}
}

// WithPath sets the URL prefix served by Handler. Defaults to "/_b/".
func WithPath(path string) HubOption {
	return func(h *Hub) {
		h.path = path
	}
}

// WithHeartbeat sets the idle interval after which the render stream sends
// a keep-alive comment. Defaults to 30s; non-positive values keep the default.
func WithHeartbeat(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

type hubEntry struct {
	session *Session
	outbox  *Outbox
}

// Hub owns the live sessions of a server and maps signed session handles
// to them. It holds no per-session state beyond that mapping.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*hubEntry

	signer     *Signer
	log        logrus.FieldLogger
	sink       ErrorSink
	setup      Setup
	ttl        time.Duration
	outboxSize int
	path       string
	heartbeat  time.Duration

	// OnError is called when a request handler fails.
	// Customize this to handle errors appropriately for your application.
	OnError func(http.ResponseWriter, *http.Request, error)
}

// Signer is an alias for encoding.Signer for convenience.
type Signer = encoding.Signer

// NewHub creates a hub that signs session handles with key.
func NewHub(key []byte, opts ...HubOption) *Hub {
	signer, err := encoding.NewSigner(key)
	if err != nil {
		panic(fmt.Sprintf("hxbind: failed to create signer: %v", err))
	}

	h := &Hub{
		sessions:  make(map[string]*hubEntry),
		signer:    signer,
		sink:      Discard,
		path:      "/_b/",
		heartbeat: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		h.log = l
	}

	h.OnError = func(w http.ResponseWriter, r *http.Request, err error) {
		switch {
		case errors.Is(err, ErrSessionNotFound),
			errors.Is(err, encoding.ErrSignatureInvalid),
			errors.Is(err, encoding.ErrInvalidFormat):
			http.Error(w, "Not found", http.StatusNotFound)
		case errors.Is(err, ErrSessionClosed):
			http.Error(w, "Gone", http.StatusGone)
		case errors.Is(err, wire.ErrMalformed),
			errors.Is(err, ErrInvalidInput),
			IsUnsupportedType(err):
			http.Error(w, "Bad request", http.StatusBadRequest)
		default:
			http.Error(w, "Internal error", http.StatusInternalServerError)
		}
	}

	return h
}

// Path returns the URL prefix served by Handler.
func (h *Hub) Path() string {
	return h.path
}

// NewSession creates a session streaming through an Outbox, runs the setup
// hook, and returns the session with its signed handle.
func (h *Hub) NewSession() (*Session, string, error) {
	id := uuid.NewString()
	outbox := NewOutbox(h.outboxSize)
	s := NewSession(id, WithLogger(h.log), WithSink(h.sink), WithTransport(outbox))

	if h.setup != nil {
		g, err := h.setup(s)
		if err != nil {
			s.Close()
			return nil, "", fmt.Errorf("hxbind: session setup: %w", err)
		}
		s.SetGraph(g)
	}

	h.mu.Lock()
	h.sessions[id] = &hubEntry{session: s, outbox: outbox}
	h.mu.Unlock()

	h.log.WithField("session", id).Info("session started")
	return s, h.signer.SignString(id), nil
}

// Resolve verifies a signed handle and returns its session and outbox.
func (h *Hub) Resolve(handle string) (*Session, *Outbox, error) {
	id, err := h.signer.VerifyString(handle)
	if err != nil {
		return nil, nil, err
	}
	h.mu.RLock()
	e, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	return e.session, e.outbox, nil
}

// Session returns the session with the given ID.
func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// End closes and forgets the session with the given ID.
func (h *Hub) End(id string) error {
	h.mu.Lock()
	e, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	h.log.WithField("session", id).Info("session ended")
	return e.session.Close()
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Sweep ends sessions idle for longer than the TTL and returns how many.
func (h *Hub) Sweep(now time.Time) int {
	if h.ttl <= 0 {
		return 0
	}

	var expired []string
	h.mu.RLock()
	for id, e := range h.sessions {
		if now.Sub(e.session.LastActive()) > h.ttl {
			expired = append(expired, id)
		}
	}
	h.mu.RUnlock()

	n := 0
	for _, id := range expired {
		if err := h.End(id); err == nil {
			n++
		}
	}
	if n > 0 {
		h.log.WithField("count", n).Info("expired idle sessions")
	}
	return n
}

// Run sweeps idle sessions every interval until ctx ends. A non-positive
// interval falls back to one minute.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Sweep(now)
		}
	}
}

// Close ends every session.
func (h *Hub) Close() {
	h.mu.Lock()
	entries := h.sessions
	h.sessions = make(map[string]*hubEntry)
	h.mu.Unlock()
	for _, e := range entries {
		e.session.Close()
	}
}
