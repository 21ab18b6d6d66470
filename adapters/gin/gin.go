// Package hxbindgin provides Gin framework integration for hxbind.
//
//	r := gin.New()
//	r.Use(hxbindgin.CORS(cors.Config{AllowOrigins: origins}))
//	hub := hxbindgin.Mount(r, hxbindgin.WithHubOptions(hxbind.WithSetup(setup)))
package hxbindgin

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/a-h/templ"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pthm/hxbind"
)

// Option configures Mount.
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

// Mount creates a hub and mounts its session routes on r, which may be an
// engine or a group.
func Mount(r gin.IRouter, opts ...Option) *hxbind.Hub {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	key := o.key
	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("hxbindgin: failed to generate random key: %v", err))
		}
	}

	hub := hxbind.NewHub(key, o.hubOpts...)
	r.Any(hub.Path()+"*path", Handler(hub))
	return hub
}

// Handler adapts the hub's routes to a Gin handler. A group prefix in
// front of the hub path is stripped before routing.
func Handler(hub *hxbind.Hub) gin.HandlerFunc {
	h := hub.Handler()
	return func(c *gin.Context) {
		prefix := strings.TrimSuffix(strings.TrimSuffix(c.FullPath(), "*path"), hub.Path())
		if prefix != "" {
			http.StripPrefix(prefix, h).ServeHTTP(c.Writer, c.Request)
			return
		}
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// CORS returns the gin-contrib/cors middleware for cfg with the bridge
// request header allowed, so cross-origin pages can post events.
func CORS(cfg cors.Config) gin.HandlerFunc {
	if !slices.ContainsFunc(cfg.AllowHeaders, func(h string) bool {
		return strings.EqualFold(h, hxbind.RequestHeader)
	}) {
		cfg.AllowHeaders = append(cfg.AllowHeaders, hxbind.RequestHeader)
	}
	return cors.New(cfg)
}

// Render writes a templ component with the given status.
func Render(c *gin.Context, status int, component templ.Component) {
	c.Status(status)
	if err := hxbind.Render(c.Writer, c.Request, component); err != nil {
		c.Error(err)
	}
}
