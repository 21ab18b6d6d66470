package client

import (
	"context"
	"io"
	"sync"

	"github.com/pthm/hxbind"
	"github.com/pthm/hxbind/lib/encoding"
	"github.com/pthm/hxbind/lib/wire"
	"github.com/sirupsen/logrus"
)

// EventSender delivers input events to the server. *hxbind.Session
// satisfies it for in-process use; HTTPSender posts over HTTP.
type EventSender interface {
	SendEvent(ctx context.Context, ev wire.InputEvent) error
}

// EventSenderFunc adapts a function to EventSender.
type EventSenderFunc func(ctx context.Context, ev wire.InputEvent) error

// SendEvent implements EventSender.
func (f EventSenderFunc) SendEvent(ctx context.Context, ev wire.InputEvent) error {
	return f(ctx, ev)
}

// EventOption configures an EventChannel.
type EventOption func(*EventChannel)

// WithQueueSize sets how many events may wait for delivery. Defaults to 64.
func WithQueueSize(n int) EventOption {
	return func(c *EventChannel) {
		c.size = n
	}
}

// WithEventSink sets the error sink for encode and delivery failures.
func WithEventSink(sink hxbind.ErrorSink) EventOption {
	return func(c *EventChannel) {
		c.sink = sink
	}
}

// WithEventLogger sets the logger.
func WithEventLogger(log logrus.FieldLogger) EventOption {
	return func(c *EventChannel) {
		c.log = log
	}
}

// EventChannel is the fire-and-forget path from scripts to the server.
// Emit encodes and enqueues; a single goroutine delivers in order.
type EventChannel struct {
	sender EventSender
	sink   hxbind.ErrorSink
	log    logrus.FieldLogger
	size   int

	queue  chan wire.InputEvent
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// NewEventChannel starts an event channel delivering through sender.
func NewEventChannel(sender EventSender, opts ...EventOption) *EventChannel {
	c := &EventChannel{
		sender: sender,
		sink:   hxbind.Discard,
		size:   64,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.log = l
	}
	if c.size < 1 {
		c.size = 1
	}

	c.queue = make(chan wire.InputEvent, c.size)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(1)
	go c.run()
	return c
}

// Emit encodes value and queues it for delivery to the input named name.
// It never blocks: encode failures, a full queue and a closed channel are
// reported to the sink and the event is dropped.
func (c *EventChannel) Emit(name string, value any, mode wire.DeliveryMode) {
	if !mode.Valid() {
		c.sink.Report(&hxbind.DeliveryError{Kind: wire.KindEvent, Name: name, Err: hxbind.ErrInvalidInput})
		return
	}

	data, err := encoding.Encode(value)
	if err != nil {
		c.sink.Report(err)
		return
	}
	ev := wire.InputEvent{Input: name, Value: data, Mode: mode}

	if c.ctx.Err() != nil {
		c.sink.Report(&hxbind.DeliveryError{Kind: wire.KindEvent, Name: name, Err: ErrHostClosed})
		return
	}
	select {
	case c.queue <- ev:
	default:
		c.sink.Report(&hxbind.DeliveryError{Kind: wire.KindEvent, Name: name, Err: ErrQueueFull})
	}
}

func (c *EventChannel) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.queue:
			if c.ctx.Err() != nil {
				return
			}
			if err := c.sender.SendEvent(c.ctx, ev); err != nil {
				c.sink.Report(&hxbind.DeliveryError{Kind: wire.KindEvent, Name: ev.Input, Err: err})
				continue
			}
			c.log.WithFields(logrus.Fields{"input": ev.Input, "mode": ev.Mode}).Debug("event delivered")
		}
	}
}

// Close stops delivery. Events still queued are discarded.
func (c *EventChannel) Close() {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}
