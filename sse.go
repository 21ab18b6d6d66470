package hxbind

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pthm/hxbind/lib/wire"
)

// SSE event names written by the render stream.
const (
	EventRender = "render"
	EventEnd    = "end"
)

// SSEWriter writes render envelopes as server-sent events.
// Each data line is the base64 msgpack envelope.
type SSEWriter struct {
	w http.ResponseWriter
}

// NewSSEWriter sets the event-stream headers on w.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w}
}

// WriteRender writes one render message, using its token as the event id.
func (s *SSEWriter) WriteRender(msg wire.RenderMessage) error {
	data, err := wire.Marshal(msg.Envelope())
	if err != nil {
		return err
	}
	return s.write(strconv.FormatUint(msg.Token, 10), EventRender, base64.StdEncoding.EncodeToString(data))
}

// Heartbeat writes a comment line to keep intermediaries from timing out.
func (s *SSEWriter) Heartbeat() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flush()
	return nil
}

// End tells the client the stream will not resume.
func (s *SSEWriter) End() error {
	return s.write("", EventEnd, "")
}

func (s *SSEWriter) write(id, event, data string) error {
	if id != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *SSEWriter) flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
