// Package hxbindecho provides Echo framework integration for hxbind.
//
// Mount a hub onto an Echo instance or group:
//
//	e := echo.New()
//	hub := hxbindecho.Mount(e, hxbindecho.WithHubOptions(hxbind.WithSetup(setup)))
//
// Or mount on a group with middleware:
//
//	g := e.Group("/app", authMiddleware)
//	hub := hxbindecho.MountGroup(g)
package hxbindecho

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/pthm/hxbind"
)

// Option configures the Mount and MountGroup functions.
type Option func(*options)

type options struct {
	key     []byte
	hubOpts []hxbind.HubOption
}

// WithKey sets the signing key for session handles.
// If not provided, a random key is generated (suitable for development only).
func WithKey(key []byte) Option {
	return func(o *options) {
		o.key = key
	}
}

// WithHubOptions passes options through to hxbind.NewHub.
func WithHubOptions(opts ...hxbind.HubOption) Option {
	return func(o *options) {
		o.hubOpts = append(o.hubOpts, opts...)
	}
}

// Mount creates a hub and mounts its session routes on an Echo instance.
func Mount(e *echo.Echo, opts ...Option) *hxbind.Hub {
	hub := newHub(opts)
	e.Any(hub.Path()+"*", Handler(hub))
	return hub
}

// MountGroup creates a hub and mounts its session routes on an Echo group.
// The routes share the group's prefix and middleware.
func MountGroup(g *echo.Group, opts ...Option) *hxbind.Hub {
	hub := newHub(opts)
	g.Any(hub.Path()+"*", Handler(hub))
	return hub
}

// Handler adapts the hub's routes to an Echo handler. A group prefix in
// front of the hub path is stripped before routing.
func Handler(hub *hxbind.Hub) echo.HandlerFunc {
	h := hub.Handler()
	return func(c echo.Context) error {
		prefix := strings.TrimSuffix(strings.TrimSuffix(c.Path(), "*"), hub.Path())
		if prefix != "" {
			http.StripPrefix(prefix, h).ServeHTTP(c.Response(), c.Request())
			return nil
		}
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

func newHub(opts []Option) *hxbind.Hub {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	key := o.key
	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("hxbindecho: failed to generate random key: %v", err))
		}
	}

	return hxbind.NewHub(key, o.hubOpts...)
}

// Render writes a templ component to the Echo response.
//
//	func page(c echo.Context) error {
//	    return hxbindecho.Render(c, hxbind.Placeholder("chart", "bars", nil))
//	}
func Render(c echo.Context, component templ.Component) error {
	return hxbind.Render(c.Response(), c.Request(), component)
}
