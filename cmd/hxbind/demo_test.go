package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pthm/hxbind"
	"github.com/pthm/hxbind/client"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestChartClickRoundTrip(t *testing.T) {
	sink := &hxbind.RecordingSink{}
	s := hxbind.NewSession("demo", hxbind.WithSink(sink))
	loop := client.NewLoop(s, sink)
	defer loop.Close()

	var out syncBuffer
	loop.Host.Register(chartRenderer, barsScript(&out, 2))
	if err := loop.Host.Mount(chartOutput, client.ElementID(hxbind.ContainerID(chartOutput)), 0, 0); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	g, err := chartSetup(s)
	if err != nil {
		t.Fatalf("chartSetup() error = %v", err)
	}
	s.SetGraph(g)

	// the first frame went out before the graph was attached; click again
	if err := s.SendEvent(context.Background(), hxbind.TestEvent(clickInput, 2, "EVENT")); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "* wed") {
		if time.Now().After(deadline) {
			t.Fatalf("clicked bar never highlighted:\n%s", out.String())
		}
		time.Sleep(time.Millisecond)
	}
	if got := loop.Host.State(chartOutput); got != client.Rendered {
		t.Errorf("State() = %v, want rendered", got)
	}
	for _, err := range sink.Errors() {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBarsScriptRejectsBadPayload(t *testing.T) {
	var out bytes.Buffer
	script := barsScript(&out, -1)
	ctx := &client.Context{Binding: "chart", Width: 120}

	tests := []struct {
		name    string
		payload any
	}{
		{"not a map", []any{1.0}},
		{"no values", map[string]any{}},
		{"non-float value", map[string]any{"values": []any{"x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := script.Render(tt.payload, ctx); err == nil {
				t.Error("Render() error = nil")
			}
		})
	}
}

func TestDemoPage(t *testing.T) {
	var buf bytes.Buffer
	if err := demoPage("/_b/").Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, want := range []string{`data-hxbind-endpoint="/_b/session"`, `id="hxbind-chart"`, `style="width:480px;height:240px"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("page missing %s:\n%s", want, buf.String())
		}
	}
}
