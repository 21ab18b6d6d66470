package hxbind

import (
	"context"
	"errors"
	"sync"

	"github.com/pthm/hxbind/lib/wire"
)

// ErrOutboxClosed is returned by Next after Close.
var ErrOutboxClosed = errors.New("hxbind: outbox closed")

// Outbox is a RenderTransport for streaming transports (SSE, websockets).
//
// It keeps at most one pending message per binding: a newer recomputation
// replaces the pending one in place and anything not newer than what is
// already pending or already handed out is dropped. Next hands messages out
// in the order their bindings first became pending.
type Outbox struct {
	mu       sync.Mutex
	pending  map[string]wire.RenderMessage
	order    []string
	lastSent map[string]uint64
	limit    int
	closed   bool
	ready    chan struct{}
	done     chan struct{}
}

// NewOutbox creates an outbox holding at most limit pending bindings
// (0 means unbounded).
func NewOutbox(limit int) *Outbox {
	return &Outbox{
		pending:  make(map[string]wire.RenderMessage),
		lastSent: make(map[string]uint64),
		limit:    limit,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

var errOutboxFull = errors.New("outbox full")

// SendRender implements RenderTransport.
func (o *Outbox) SendRender(ctx context.Context, msg wire.RenderMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	if last, ok := o.lastSent[msg.Binding]; ok && msg.Token <= last {
		return nil
	}
	if cur, ok := o.pending[msg.Binding]; ok {
		if msg.Token > cur.Token {
			o.pending[msg.Binding] = msg
		}
		return nil
	}
	if o.limit > 0 && len(o.order) >= o.limit {
		return errOutboxFull
	}

	o.pending[msg.Binding] = msg
	o.order = append(o.order, msg.Binding)
	select {
	case o.ready <- struct{}{}:
	default:
	}
	return nil
}

// Next blocks until a message is pending, ctx ends, or the outbox closes.
func (o *Outbox) Next(ctx context.Context) (wire.RenderMessage, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return wire.RenderMessage{}, ErrOutboxClosed
		}
		if len(o.order) > 0 {
			name := o.order[0]
			o.order = o.order[1:]
			msg := o.pending[name]
			delete(o.pending, name)
			o.lastSent[name] = msg.Token
			more := len(o.order) > 0
			o.mu.Unlock()
			if more {
				select {
				case o.ready <- struct{}{}:
				default:
				}
			}
			return msg, nil
		}
		o.mu.Unlock()

		select {
		case <-o.ready:
		case <-o.done:
		case <-ctx.Done():
			return wire.RenderMessage{}, ctx.Err()
		}
	}
}

// Len returns the number of pending messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}

// Close discards pending messages and wakes blocked readers.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	o.pending = nil
	o.order = nil
	close(o.done)
	return nil
}
