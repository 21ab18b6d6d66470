package hxbind

import (
	"maps"
	"sync/atomic"
)

// Option keys understood by the bridge itself. Other keys are passed through
// to the rendering script untouched.
const (
	OptWidth  = "width"
	OptHeight = "height"
)

// Options configures a binding (sizing policy and renderer settings).
type Options map[string]any

// Binding is the server half of a named output/surface association.
//
// A Binding is created by Session.RegisterOutput and belongs to exactly one
// session. Its name is unique among the session's active bindings.
type Binding struct {
	name     string
	renderer string
	options  Options
	session  *Session

	// seq is the highest recomputation sequence number handed out.
	seq atomic.Uint64
}

// Name returns the binding's name.
func (b *Binding) Name() string {
	return b.name
}

// Renderer returns the opaque rendering script reference.
func (b *Binding) Renderer() string {
	return b.renderer
}

// Options returns a copy of the binding's options.
func (b *Binding) Options() Options {
	return maps.Clone(b.options)
}

// Dimensions returns the sizing hints from the width/height options, or
// zero when the client decides.
func (b *Binding) Dimensions() (width, height int) {
	return intOption(b.options, OptWidth), intOption(b.options, OptHeight)
}

// Session returns the owning session.
func (b *Binding) Session() *Session {
	return b.session
}

// Sequence returns the last freshness token assigned to this binding.
func (b *Binding) Sequence() uint64 {
	return b.seq.Load()
}

func (b *Binding) nextToken() uint64 {
	return b.seq.Add(1)
}

// observe records an externally supplied sequence number so later
// nextToken calls stay above it.
func (b *Binding) observe(seq uint64) {
	for {
		cur := b.seq.Load()
		if seq <= cur || b.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func intOption(opts Options, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
