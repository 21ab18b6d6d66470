// Package hxbind is a bidirectional reactive data-binding bridge between
// server-side reactive computations and client-side rendering scripts.
//
// A server session registers named outputs. Each time the reactive graph
// recomputes an output, the value is encoded and pushed to the client,
// where a rendering script draws it into the surface mounted under the same
// name. Scripts can send values back as named inputs, which the session
// stores and feeds into the graph so dependent outputs recompute.
//
// # Sessions and Bindings
//
// A Session owns its bindings, input slots and transport; nothing is shared
// between sessions. Outputs and inputs are registered by name:
//
//	chart, err := s.RegisterOutput("chart", "bars", hxbind.Options{hxbind.OptHeight: 240})
//	clicked := s.RegisterInput("bar_clicked")
//
// The reactive framework publishes recomputed values through the render
// channel and receives change notifications through a Graph:
//
//	s.SetGraph(hxbind.GraphFunc(func(ctx context.Context, name string) {
//	    s.Render().Publish(ctx, chart, recompute(clicked.Value()))
//	}))
//
// # Freshness
//
// Every publish is tagged with a per-binding freshness token that only
// grows. Transports and the client host drop messages whose token is not
// newer than one already handled, so a slow recomputation never overwrites
// a newer one.
//
// # Delivery Modes
//
// Inputs arrive as wire.InputEvent values in one of two modes:
//   - VALUE: state-like; an event equal to the current value is ignored
//   - EVENT: occurrence-like; every event is applied and notifies the graph
//
// Before the first event a slot holds Unset, which is distinct from nil.
// Use Require or Guard to keep computations from running on unset inputs.
//
// # Payloads
//
// Values cross the wire in msgpack (lib/encoding). The supported set is
// closed: nil, booleans, numbers, strings, sequences and string-keyed maps.
// Anything else fails with *UnsupportedTypeError before it is sent.
//
// # Serving
//
// A Hub manages sessions for an HTTP server. Session handles are signed,
// renders stream as server-sent events and events are posted back as
// msgpack envelopes:
//
//	hub := hxbind.NewHub(key, hxbind.WithSetup(setup))
//	mux.Handle(hub.Path(), hub.Handler())
//
// Mutating requests must carry the HXBind-Request: true header, which
// browsers only send cross-origin after a CORS preflight.
//
// The adapters/echo and adapters/gin packages mount a hub on those
// routers. The client package implements the receiving side: a render host
// that drives scripts, an event channel and an HTTP/SSE client.
//
// # Errors
//
// Failures that have no caller to return to (script errors, transport
// failures, undecodable events) go to the session's ErrorSink. LogSink
// writes them to a logrus logger. No component retries.
package hxbind
