package hxbind

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pthm/hxbind/lib/wire"
)

// RequestHeader must be "true" on mutating requests.
const RequestHeader = "HXBind-Request"

// ContentTypeMsgpack is the content type of event bodies.
const ContentTypeMsgpack = "application/msgpack"

const maxEventBytes = 1 << 20

// SessionInfo is the JSON body returned when a session is created.
type SessionInfo struct {
	Handle   string        `json:"session"`
	Bindings []BindingInfo `json:"bindings"`
}

// BindingInfo describes one output so the client can mount its surface.
type BindingInfo struct {
	Name     string  `json:"name"`
	Renderer string  `json:"renderer"`
	Options  Options `json:"options,omitempty"`
}

// EventResult is the JSON body returned for an accepted event.
type EventResult struct {
	Applied  bool   `json:"applied"`
	Revision uint64 `json:"revision"`
}

// Handler returns the HTTP handler for session routes under Path():
//
//	POST   {path}session                  create a session
//	GET    {path}session/{handle}/stream  render stream (SSE)
//	POST   {path}session/{handle}/event   msgpack event envelope
//	DELETE {path}session/{handle}         end the session
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+h.path+"session", h.handleCreate)
	mux.HandleFunc("GET "+h.path+"session/{handle}/stream", h.handleStream)
	mux.HandleFunc("POST "+h.path+"session/{handle}/event", h.handleEvent)
	mux.HandleFunc("DELETE "+h.path+"session/{handle}", h.handleEnd)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
			if !IsBridgeRequest(r) {
				http.Error(w, "Forbidden: bridge request required", http.StatusForbidden)
				return
			}
		}
		mux.ServeHTTP(w, r)
	})
}

func (h *Hub) handleCreate(w http.ResponseWriter, r *http.Request) {
	s, handle, err := h.NewSession()
	if err != nil {
		h.OnError(w, r, err)
		return
	}

	info := SessionInfo{Handle: handle, Bindings: []BindingInfo{}}
	for _, name := range s.Bindings() {
		if b, ok := s.Binding(name); ok {
			info.Bindings = append(info.Bindings, BindingInfo{Name: name, Renderer: b.Renderer(), Options: b.Options()})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(info)
}

func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	s, outbox, err := h.Resolve(r.PathValue("handle"))
	if err != nil {
		h.OnError(w, r, err)
		return
	}

	sse := NewSSEWriter(w)
	w.WriteHeader(http.StatusOK)
	sse.flush()

	ctx := r.Context()
	log := s.Logger().WithField("remote", r.RemoteAddr)
	log.Debug("render stream opened")
	defer log.Debug("render stream closed")

	for {
		next, cancel := context.WithTimeout(ctx, h.heartbeat)
		msg, err := outbox.Next(next)
		cancel()

		switch {
		case err == nil:
			s.Touch()
			if err := sse.WriteRender(msg); err != nil {
				s.sink.Report(&DeliveryError{Kind: wire.KindRender, Name: msg.Binding, Err: err})
				return
			}
		case errors.Is(err, ErrOutboxClosed):
			sse.End()
			return
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			if err := sse.Heartbeat(); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (h *Hub) handleEvent(w http.ResponseWriter, r *http.Request) {
	s, _, err := h.Resolve(r.PathValue("handle"))
	if err != nil {
		h.OnError(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		h.OnError(w, r, errors.Join(wire.ErrMalformed, err))
		return
	}
	env, err := wire.Unmarshal(body)
	if err != nil {
		h.OnError(w, r, err)
		return
	}
	ev, err := env.InputEvent()
	if err != nil {
		h.OnError(w, r, err)
		return
	}

	res, err := s.ApplyEvent(r.Context(), ev)
	if err != nil {
		h.OnError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(res)
}

func (h *Hub) handleEnd(w http.ResponseWriter, r *http.Request) {
	s, _, err := h.Resolve(r.PathValue("handle"))
	if err != nil {
		h.OnError(w, r, err)
		return
	}
	if err := h.End(s.ID()); err != nil {
		h.OnError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
