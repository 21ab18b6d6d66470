package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pthm/hxbind"
	"github.com/pthm/hxbind/lib/wire"
)

// ReadStream parses a render event stream from r and sends each render
// message to out. It returns nil when the server ends the stream or r hits
// EOF, and ctx.Err() if ctx ends first. Lines are not length limited, so a
// render of any size the server accepted can be read.
func ReadStream(ctx context.Context, r io.Reader, out chan<- wire.RenderMessage) error {
	br := bufio.NewReaderSize(r, 64*1024)

	var event string
	var data strings.Builder
	for eof := false; !eof; {
		raw, err := br.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				if cerr := ctx.Err(); cerr != nil {
					return cerr
				}
				return err
			}
			eof = true
			if raw == "" {
				break
			}
		}
		line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")

		switch {
		case line == "":
			if event == "" && data.Len() == 0 {
				continue
			}
			if event == hxbind.EventEnd {
				return nil
			}
			if event == hxbind.EventRender {
				msg, err := decodeRender(data.String())
				if err != nil {
					return err
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				event = value
			case "data":
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(value)
			}
		}
	}
	return ctx.Err()
}

func decodeRender(data string) (wire.RenderMessage, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return wire.RenderMessage{}, errors.Join(wire.ErrMalformed, err)
	}
	env, err := wire.Unmarshal(raw)
	if err != nil {
		return wire.RenderMessage{}, err
	}
	return env.RenderMessage()
}

// Remote talks to a hub's HTTP handler.
type Remote struct {
	base string
	http *http.Client
}

// NewRemote creates a Remote for the hub mounted at base, e.g.
// "http://localhost:8080/_b/". A nil hc uses http.DefaultClient.
func NewRemote(base string, hc *http.Client) *Remote {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Remote{base: base, http: hc}
}

// Create starts a session and returns its handle and bindings.
func (c *Remote) Create(ctx context.Context) (hxbind.SessionInfo, error) {
	var info hxbind.SessionInfo
	resp, err := c.do(ctx, http.MethodPost, c.base+"session", "", nil)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return info, statusError("create session", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("client: decode session: %w", err)
	}
	return info, nil
}

// Stream opens the render stream for handle and feeds it to out until the
// session ends or ctx is cancelled.
func (c *Remote) Stream(ctx context.Context, handle string, out chan<- wire.RenderMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"session/"+handle+"/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError("open stream", resp)
	}
	return ReadStream(ctx, resp.Body, out)
}

// End deletes the session.
func (c *Remote) End(ctx context.Context, handle string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.base+"session/"+handle, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return statusError("end session", resp)
	}
	return nil
}

// Sender returns an EventSender posting to the session behind handle.
func (c *Remote) Sender(handle string) *HTTPSender {
	return &HTTPSender{Client: c.http, URL: c.base + "session/" + handle + "/event"}
}

func (c *Remote) do(ctx context.Context, method, url, contentType string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set(hxbind.RequestHeader, "true")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.http.Do(req)
}

// HTTPSender posts input events as msgpack envelopes.
type HTTPSender struct {
	Client *http.Client
	URL    string
}

// SendEvent implements EventSender.
func (s *HTTPSender) SendEvent(ctx context.Context, ev wire.InputEvent) error {
	body, err := wire.Marshal(ev.Envelope())
	if err != nil {
		return err
	}
	hc := s.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	r := &Remote{http: hc}
	resp, err := r.do(ctx, http.MethodPost, s.URL, hxbind.ContentTypeMsgpack, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return statusError("send event", resp)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("client: %s: %s: %s", op, resp.Status, strings.TrimSpace(string(msg)))
}
