package hxbind

import (
	"context"
	"errors"

	"github.com/pthm/hxbind/lib/encoding"
	"github.com/pthm/hxbind/lib/wire"
	"github.com/sirupsen/logrus"
)

var errNoTransport = errors.New("no render transport attached")

// RenderTransport carries render messages from a session to its client.
// Implementations must drop, not reorder, superseded messages.
type RenderTransport interface {
	SendRender(ctx context.Context, msg wire.RenderMessage) error
}

// RenderTransportFunc adapts a function to RenderTransport.
type RenderTransportFunc func(ctx context.Context, msg wire.RenderMessage) error

// SendRender implements RenderTransport.
func (f RenderTransportFunc) SendRender(ctx context.Context, msg wire.RenderMessage) error {
	return f(ctx, msg)
}

// MessageHandler is the receiving side of an in-process render transport,
// typically a client render host.
type MessageHandler interface {
	OnMessage(msg wire.RenderMessage)
}

// Loopback delivers render messages synchronously to an in-process host.
func Loopback(h MessageHandler) RenderTransport {
	return RenderTransportFunc(func(ctx context.Context, msg wire.RenderMessage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.OnMessage(msg)
		return nil
	})
}

// RenderChannel pushes recomputed binding values to the session's client.
type RenderChannel struct {
	session *Session
}

// Publish encodes value and sends it for b, tagged with the binding's next
// freshness token. It returns the token used.
//
// Encoding failures return *UnsupportedTypeError; transport failures return
// *DeliveryError. Both are also reported to the session's error sink.
// Nothing is retried.
func (c *RenderChannel) Publish(ctx context.Context, b *Binding, value any) (uint64, error) {
	if err := c.check(b); err != nil {
		return 0, err
	}
	return c.send(ctx, b, b.nextToken(), value)
}

// PublishAt is Publish with a sequence number supplied by the reactive
// framework. A seq below one already used is still sent; the transport or
// host discards it as superseded.
func (c *RenderChannel) PublishAt(ctx context.Context, b *Binding, seq uint64, value any) (uint64, error) {
	if err := c.check(b); err != nil {
		return 0, err
	}
	b.observe(seq)
	return c.send(ctx, b, seq, value)
}

func (c *RenderChannel) check(b *Binding) error {
	s := c.session
	if s.Closed() {
		return ErrSessionClosed
	}
	if b == nil {
		return ErrBindingNotFound
	}
	if cur, ok := s.Binding(b.name); !ok || cur != b {
		return &bindingError{name: b.name}
	}
	return nil
}

func (c *RenderChannel) send(ctx context.Context, b *Binding, token uint64, value any) (uint64, error) {
	s := c.session
	log := s.log.WithFields(logrus.Fields{"binding": b.name, "token": token})

	payload, err := encoding.Encode(value)
	if err != nil {
		s.sink.Report(err)
		return token, err
	}

	width, height := b.Dimensions()
	msg := wire.RenderMessage{
		Binding:  b.name,
		Payload:  payload,
		Renderer: b.renderer,
		Width:    width,
		Height:   height,
		Options:  b.Options(),
		Token:    token,
	}

	s.mu.RLock()
	transport := s.transport
	s.mu.RUnlock()
	if transport == nil {
		err := &DeliveryError{Kind: wire.KindRender, Name: b.name, Err: errNoTransport}
		s.sink.Report(err)
		return token, err
	}
	if err := transport.SendRender(ctx, msg); err != nil {
		derr := &DeliveryError{Kind: wire.KindRender, Name: b.name, Err: err}
		s.sink.Report(derr)
		return token, derr
	}

	s.touch()
	log.WithField("bytes", len(payload)).Debug("render published")
	return token, nil
}

type bindingError struct {
	name string
}

func (e *bindingError) Error() string {
	return "hxbind: binding " + e.name + " is not registered in this session"
}

func (e *bindingError) Unwrap() error {
	return ErrBindingNotFound
}
