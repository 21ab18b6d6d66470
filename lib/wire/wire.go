// Package wire defines the transport-agnostic messages exchanged between the
// server session and the client render host, and their msgpack envelope.
package wire

import (
	"errors"
	"fmt"

	"github.com/pthm/hxbind/lib/encoding"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformed is returned for envelopes that fail to decode or validate.
var ErrMalformed = errors.New("wire: malformed envelope")

// Kind tags an envelope as a render or an event.
type Kind string

const (
	KindRender Kind = "render"
	KindEvent  Kind = "event"
)

// DeliveryMode governs whether repeated identical inputs coalesce.
type DeliveryMode string

const (
	// ModeValue has state semantics: repeating the current value is a no-op.
	ModeValue DeliveryMode = "VALUE"

	// ModeEvent has signal semantics: every emission is applied.
	ModeEvent DeliveryMode = "EVENT"
)

// Valid reports whether m is a known delivery mode.
func (m DeliveryMode) Valid() bool {
	return m == ModeValue || m == ModeEvent
}

// ParseDeliveryMode parses "VALUE" or "EVENT".
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	m := DeliveryMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown delivery mode %q", ErrMalformed, s)
	}
	return m, nil
}

// RenderMessage carries one recomputation of a binding to the client.
type RenderMessage struct {
	Binding  string
	Payload  []byte // codec bytes
	Renderer string
	Width    int
	Height   int
	Options  map[string]any
	Token    uint64 // freshness token
}

// InputEvent carries one script-emitted input value to the server.
type InputEvent struct {
	Input string
	Value []byte // codec bytes
	Mode  DeliveryMode
}

// Envelope is the on-the-wire frame for both directions.
type Envelope struct {
	Type     Kind           `msgpack:"type"`
	Name     string         `msgpack:"name"`
	Payload  []byte         `msgpack:"payload"`
	Token    uint64         `msgpack:"token,omitempty"`
	Mode     DeliveryMode   `msgpack:"mode,omitempty"`
	Renderer string         `msgpack:"renderer,omitempty"`
	Width    int            `msgpack:"width,omitempty"`
	Height   int            `msgpack:"height,omitempty"`
	Options  map[string]any `msgpack:"options,omitempty"`
}

// Envelope wraps the message for transport.
func (m RenderMessage) Envelope() Envelope {
	return Envelope{
		Type:     KindRender,
		Name:     m.Binding,
		Payload:  m.Payload,
		Token:    m.Token,
		Renderer: m.Renderer,
		Width:    m.Width,
		Height:   m.Height,
		Options:  m.Options,
	}
}

// Envelope wraps the event for transport.
func (e InputEvent) Envelope() Envelope {
	return Envelope{
		Type:    KindEvent,
		Name:    e.Input,
		Payload: e.Value,
		Mode:    e.Mode,
	}
}

// RenderMessage unwraps a render envelope.
func (env Envelope) RenderMessage() (RenderMessage, error) {
	if env.Type != KindRender {
		return RenderMessage{}, fmt.Errorf("%w: type %q is not %q", ErrMalformed, env.Type, KindRender)
	}
	if env.Name == "" {
		return RenderMessage{}, fmt.Errorf("%w: render without binding name", ErrMalformed)
	}
	return RenderMessage{
		Binding:  env.Name,
		Payload:  env.Payload,
		Renderer: env.Renderer,
		Width:    env.Width,
		Height:   env.Height,
		Options:  env.Options,
		Token:    env.Token,
	}, nil
}

// InputEvent unwraps an event envelope.
func (env Envelope) InputEvent() (InputEvent, error) {
	if env.Type != KindEvent {
		return InputEvent{}, fmt.Errorf("%w: type %q is not %q", ErrMalformed, env.Type, KindEvent)
	}
	if env.Name == "" {
		return InputEvent{}, fmt.Errorf("%w: event without input name", ErrMalformed)
	}
	if !env.Mode.Valid() {
		return InputEvent{}, fmt.Errorf("%w: unknown delivery mode %q", ErrMalformed, env.Mode)
	}
	return InputEvent{Input: env.Name, Value: env.Payload, Mode: env.Mode}, nil
}

// Marshal encodes an envelope.
func Marshal(env Envelope) ([]byte, error) {
	return msgpack.Marshal(&env)
}

// Unmarshal decodes an envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type != KindRender && env.Type != KindEvent {
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
	if env.Options != nil {
		opts, err := encoding.Normalize(env.Options)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: options: %v", ErrMalformed, err)
		}
		env.Options = opts.(map[string]any)
	}
	return env, nil
}
