package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for the client host.
var (
	ErrScriptInvocation = errors.New("client: script invocation failed")
	ErrUnknownRenderer  = errors.New("client: unknown renderer")
	ErrHostClosed       = errors.New("client: host closed")
	ErrSurfaceMounted   = errors.New("client: surface already mounted")
	ErrSurfaceNotFound  = errors.New("client: surface not mounted")
	ErrQueueFull        = errors.New("client: event queue full")
)

// ScriptInvocationError reports a rendering script that failed (returned an
// error or panicked) while handling one render. The surface keeps its last
// successfully rendered state.
type ScriptInvocationError struct {
	Binding  string
	Renderer string
	Token    uint64
	Err      error
}

func (e *ScriptInvocationError) Error() string {
	return fmt.Sprintf("client: renderer %q for %q (token %d): %v", e.Renderer, e.Binding, e.Token, e.Err)
}

func (e *ScriptInvocationError) Unwrap() []error {
	return []error{ErrScriptInvocation, e.Err}
}

// IsScriptInvocation checks if err is a script failure.
func IsScriptInvocation(err error) bool {
	return errors.Is(err, ErrScriptInvocation)
}
