package hxbind

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pthm/hxbind/lib/wire"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub([]byte("test-key"), WithHeartbeat(20*time.Millisecond), WithSetup(func(s *Session) (Graph, error) {
		g, err := chartSetup(s)
		if err != nil {
			return nil, err
		}
		return g, s.OnRecompute(context.Background(), "chart", []float64{0.3, 0.6, 0.8})
	}))
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func bridgeRequest(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set(RequestHeader, "true")
	req.Header.Set("Content-Type", ContentTypeMsgpack)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	return resp
}

func createSession(t *testing.T, srv *httptest.Server) SessionInfo {
	t.Helper()
	resp := bridgeRequest(t, http.MethodPost, srv.URL+"/_b/session", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var info SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode session info: %v", err)
	}
	return info
}

// readRender reads SSE lines until a render event and decodes it.
func readRender(t *testing.T, r *bufio.Reader) wire.RenderMessage {
	t.Helper()
	event := ""
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == EventRender:
			raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, "data: "))
			if err != nil {
				t.Fatalf("decode data: %v", err)
			}
			env, err := wire.Unmarshal(raw)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			msg, err := env.RenderMessage()
			if err != nil {
				t.Fatalf("RenderMessage() error = %v", err)
			}
			return msg
		}
	}
}

func TestHandlerRoundTrip(t *testing.T) {
	_, srv := newTestServer(t)
	info := createSession(t, srv)

	want := []BindingInfo{{Name: "chart", Renderer: "bars", Options: Options{OptHeight: float64(200)}}}
	if diff := cmp.Diff(want, info.Bindings); diff != "" {
		t.Errorf("bindings mismatch (-want +got):\n%s", diff)
	}

	stream, err := http.Get(srv.URL + "/_b/session/" + info.Handle + "/stream")
	if err != nil {
		t.Fatalf("GET stream error = %v", err)
	}
	defer stream.Body.Close()
	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	r := bufio.NewReader(stream.Body)

	first := readRender(t, r)
	if first.Token != 1 || first.Height != 200 {
		t.Errorf("first render token = %d height = %d", first.Token, first.Height)
	}
	if diff := cmp.Diff([]any{0.3, 0.6, 0.8}, DecodePayload(first)); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	body, _ := wire.Marshal(TestEvent("bar_clicked", "0.6", wire.ModeEvent).Envelope())
	resp := bridgeRequest(t, http.MethodPost, srv.URL+"/_b/session/"+info.Handle+"/event", body)
	var result EventResult
	json.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("event status = %d, want 202", resp.StatusCode)
	}
	if diff := cmp.Diff(EventResult{Applied: true, Revision: 1}, result); diff != "" {
		t.Errorf("event result mismatch (-want +got):\n%s", diff)
	}

	second := readRender(t, r)
	if second.Token != 2 {
		t.Errorf("second render token = %d, want 2", second.Token)
	}
	if diff := cmp.Diff(map[string]any{"highlight": "0.6"}, DecodePayload(second)); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	resp = bridgeRequest(t, http.MethodDelete, srv.URL+"/_b/session/"+info.Handle, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
}

func TestHandlerErrors(t *testing.T) {
	_, srv := newTestServer(t)
	info := createSession(t, srv)
	eventURL := srv.URL + "/_b/session/" + info.Handle + "/event"

	t.Run("missing header", func(t *testing.T) {
		resp, err := http.Post(eventURL, ContentTypeMsgpack, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want 403", resp.StatusCode)
		}
	})

	t.Run("forged handle", func(t *testing.T) {
		resp := bridgeRequest(t, http.MethodPost, srv.URL+"/_b/session/abc.def/event", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("malformed envelope", func(t *testing.T) {
		resp := bridgeRequest(t, http.MethodPost, eventURL, []byte{0xc1})
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("render envelope posted as event", func(t *testing.T) {
		body, _ := wire.Marshal(wire.RenderMessage{Binding: "chart"}.Envelope())
		resp := bridgeRequest(t, http.MethodPost, eventURL, body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestHandlerStreamEndsWithSession(t *testing.T) {
	h, srv := newTestServer(t)
	info := createSession(t, srv)

	stream, err := http.Get(srv.URL + "/_b/session/" + info.Handle + "/stream")
	if err != nil {
		t.Fatalf("GET stream error = %v", err)
	}
	defer stream.Body.Close()
	r := bufio.NewReader(stream.Body)
	readRender(t, r)

	s, _, err := h.Resolve(info.Handle)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	h.End(s.ID())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if strings.HasPrefix(line, "event: "+EventEnd) {
			return
		}
	}
	t.Fatal("stream did not end after session end")
}
