package hxbind

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pthm/hxbind/lib/wire"
)

func newTestSession(t *testing.T) (*Session, *RecordingGraph, *RecordingTransport, *RecordingSink) {
	t.Helper()
	graph := &RecordingGraph{}
	transport := &RecordingTransport{}
	sink := &RecordingSink{}
	s := NewSession("test", WithGraph(graph), WithTransport(transport), WithSink(sink))
	t.Cleanup(func() { s.Close() })
	return s, graph, transport, sink
}

func TestRegisterOutputDuplicate(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	if _, err := s.RegisterOutput("chart", "bars", nil); err != nil {
		t.Fatalf("RegisterOutput() error = %v", err)
	}
	_, err := s.RegisterOutput("chart", "lines", nil)
	var dup *DuplicateBindingError
	if !errors.As(err, &dup) {
		t.Fatalf("RegisterOutput() error = %v, want *DuplicateBindingError", err)
	}
	if dup.Name != "chart" {
		t.Errorf("DuplicateBindingError.Name = %q, want chart", dup.Name)
	}

	if !s.RemoveOutput("chart") {
		t.Fatal("RemoveOutput() = false")
	}
	if _, err := s.RegisterOutput("chart", "lines", nil); err != nil {
		t.Errorf("RegisterOutput() after remove error = %v", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	a, _, _, _ := newTestSession(t)
	b, _, _, _ := newTestSession(t)

	if _, err := a.RegisterOutput("chart", "bars", nil); err != nil {
		t.Fatalf("RegisterOutput() error = %v", err)
	}
	if _, err := b.RegisterOutput("chart", "bars", nil); err != nil {
		t.Errorf("same name in another session error = %v", err)
	}

	a.Apply(context.Background(), TestEvent("x", 1, wire.ModeValue))
	if b.Inputs().IsSet("x") {
		t.Error("input applied to one session is visible in another")
	}
}

func TestApplyValueCoalescing(t *testing.T) {
	s, graph, _, _ := newTestSession(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.Apply(ctx, TestEvent("filter", "X", wire.ModeValue)); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	if got := graph.Count("filter"); got != 1 {
		t.Errorf("notifications = %d, want 1", got)
	}
}

func TestApplyEventNonCoalescing(t *testing.T) {
	s, graph, _, _ := newTestSession(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.Apply(ctx, TestEvent("bar_clicked", "X", wire.ModeEvent)); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	if got := graph.Count("bar_clicked"); got != 2 {
		t.Errorf("notifications = %d, want 2", got)
	}
}

func TestApplyFirstEventFromUnset(t *testing.T) {
	s, graph, _, _ := newTestSession(t)
	slot := s.RegisterInput("bar_clicked")

	if slot.Revision() != 0 || slot.IsSet() {
		t.Fatalf("fresh slot: revision = %d, set = %v", slot.Revision(), slot.IsSet())
	}

	applied, err := s.Apply(context.Background(), TestEvent("bar_clicked", "0.6", wire.ModeEvent))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !applied {
		t.Error("Apply() = false")
	}
	if got := slot.Revision(); got != 1 {
		t.Errorf("revision = %d, want 1", got)
	}
	if diff := cmp.Diff([]string{"bar_clicked"}, graph.Notified()); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
	if v, _ := slot.Get(); v != "0.6" {
		t.Errorf("value = %v, want 0.6", v)
	}
}

func TestApplyEventRevision(t *testing.T) {
	tests := []struct {
		name   string
		events []wire.InputEvent
		want   []EventResult
	}{
		{
			name: "value coalesces",
			events: []wire.InputEvent{
				TestEvent("filter", "a", wire.ModeValue),
				TestEvent("filter", "a", wire.ModeValue),
				TestEvent("filter", "b", wire.ModeValue),
			},
			want: []EventResult{{Applied: true, Revision: 1}, {Applied: false, Revision: 1}, {Applied: true, Revision: 2}},
		},
		{
			name: "event always applies",
			events: []wire.InputEvent{
				TestEvent("clicked", 1, wire.ModeEvent),
				TestEvent("clicked", 1, wire.ModeEvent),
			},
			want: []EventResult{{Applied: true, Revision: 1}, {Applied: true, Revision: 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _, _ := newTestSession(t)
			var got []EventResult
			for _, ev := range tt.events {
				res, err := s.ApplyEvent(context.Background(), ev)
				if err != nil {
					t.Fatalf("ApplyEvent() error = %v", err)
				}
				got = append(got, res)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("results mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyEventConcurrentRevisions(t *testing.T) {
	const n = 50
	s, _, _, _ := newTestSession(t)
	s.RegisterInput("tick")

	revs := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.ApplyEvent(context.Background(), TestEvent("tick", 1, wire.ModeEvent))
			if err != nil {
				t.Errorf("ApplyEvent() error = %v", err)
				return
			}
			revs <- res.Revision
		}()
	}
	wg.Wait()
	close(revs)

	var got []uint64
	for r := range revs {
		got = append(got, r)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := make([]uint64, n)
	for i := range want {
		want[i] = uint64(i + 1)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("revisions mismatch (-want +got):\n%s", diff)
	}
}

func TestUnsetGuardAbstains(t *testing.T) {
	s, _, transport, _ := newTestSession(t)
	if _, err := s.RegisterOutput("detail", "table", nil); err != nil {
		t.Fatalf("RegisterOutput() error = %v", err)
	}
	selected := s.RegisterInput("selected")

	computed := 0
	recompute := func() {
		s.Inputs().Guard(func(v map[string]any) {
			computed++
			s.OnRecompute(context.Background(), "detail", v["selected"])
		}, selected.Name())
	}

	recompute()
	if computed != 0 || len(transport.Messages()) != 0 {
		t.Fatalf("computation ran on unset input: computed = %d", computed)
	}
	if selected.Value() != Unset {
		t.Errorf("Value() = %v, want Unset", selected.Value())
	}

	s.Apply(context.Background(), TestEvent("selected", "row-3", wire.ModeValue))
	recompute()
	if computed != 1 {
		t.Errorf("computed = %d, want 1", computed)
	}
}

func TestApplyInvalidReportsToSink(t *testing.T) {
	s, graph, _, sink := newTestSession(t)

	_, err := s.Apply(context.Background(), wire.InputEvent{Input: "x", Value: []byte{0xc1}, Mode: wire.ModeValue})
	if !IsUnsupportedType(err) {
		t.Fatalf("Apply() error = %v, want unsupported type", err)
	}
	if sink.Len() != 1 {
		t.Errorf("sink reports = %d, want 1", sink.Len())
	}
	if len(graph.Notified()) != 0 {
		t.Error("graph notified for rejected event")
	}
}

func TestSessionClose(t *testing.T) {
	s, graph, _, _ := newTestSession(t)
	b, err := s.RegisterOutput("chart", "bars", nil)
	if err != nil {
		t.Fatalf("RegisterOutput() error = %v", err)
	}

	s.Close()

	select {
	case <-s.Context().Done():
	default:
		t.Error("session context not cancelled")
	}
	if _, err := s.Apply(context.Background(), TestEvent("x", 1, wire.ModeEvent)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Apply() after close error = %v, want ErrSessionClosed", err)
	}
	if _, err := s.Render().Publish(context.Background(), b, 1); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Publish() after close error = %v, want ErrSessionClosed", err)
	}
	if err := s.OnRecompute(context.Background(), "chart", 1); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("OnRecompute() after close error = %v, want ErrSessionClosed", err)
	}
	if _, err := s.RegisterOutput("other", "bars", nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("RegisterOutput() after close error = %v, want ErrSessionClosed", err)
	}
	if len(graph.Notified()) != 0 {
		t.Error("graph notified after close")
	}
}

func TestApplyIsSequential(t *testing.T) {
	graph := &RecordingGraph{}
	s := NewSession("seq", WithGraph(graph))
	defer s.Close()

	var (
		mu     sync.Mutex
		active int
		maxAct int
	)
	graph.OnChange = func(ctx context.Context, name string) {
		mu.Lock()
		active++
		if active > maxAct {
			maxAct = active
		}
		mu.Unlock()

		mu.Lock()
		active--
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Apply(context.Background(), TestEvent("tick", 1, wire.ModeEvent))
		}()
	}
	wg.Wait()

	if got := s.Inputs().Revision("tick"); got != 50 {
		t.Errorf("revision = %d, want 50", got)
	}
	if maxAct != 1 {
		t.Errorf("max concurrent notifications = %d, want 1", maxAct)
	}
}
