package client

import "github.com/pthm/hxbind/lib/wire"

// Script is a rendering routine. It receives the decoded payload and an
// execution context and draws into ctx.Container.
//
// Render is called with ctx.Initialized == false until one call has
// succeeded for the surface, so one-time setup can be done there.
type Script interface {
	Render(payload any, ctx *Context) error
}

// ScriptFunc adapts a function to Script.
type ScriptFunc func(payload any, ctx *Context) error

// Render implements Script.
func (f ScriptFunc) Render(payload any, ctx *Context) error {
	return f(payload, ctx)
}

// Container is the bound element a script draws into.
type Container interface {
	ID() string
}

// ElementID is a Container identified by its DOM id.
type ElementID string

// ID implements Container.
func (e ElementID) ID() string { return string(e) }

// Context is the execution context handed to a script for one invocation.
type Context struct {
	Binding     string
	Width       int
	Height      int
	Container   Container
	Initialized bool
	Options     map[string]any
	Token       uint64

	emit func(name string, value any, mode wire.DeliveryMode)
}

// SetInput sends a value back to the server input named name. It never
// blocks; failures go to the host's error sink.
func (c *Context) SetInput(name string, value any, mode wire.DeliveryMode) {
	if c.emit != nil {
		c.emit(name, value, mode)
	}
}
