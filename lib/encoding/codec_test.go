package encoding

import (
	"bytes"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type level string

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int", 42, int64(42)},
		{"negative int8", int8(-7), int64(-7)},
		{"uint32", uint32(7), int64(7)},
		{"large uint64", uint64(math.MaxUint64), uint64(math.MaxUint64)},
		{"float64", 0.6, 0.6},
		{"float precision", 0.1 + 0.2, 0.1 + 0.2},
		{"float32", float32(0.5), 0.5},
		{"string", "bar", "bar"},
		{"named string", level("info"), "info"},
		{"sequence", []float64{0.3, 0.6, 0.8}, []any{0.3, 0.6, 0.8}},
		{"array", [2]string{"a", "b"}, []any{"a", "b"}},
		{"nil slice", []int(nil), []any{}},
		{"empty map", map[string]int{}, map[string]any{}},
		{
			"table",
			[]map[string]any{
				{"x": "a", "y": 1},
				{"x": "b", "y": 2.5},
			},
			[]any{
				map[string]any{"x": "a", "y": int64(1)},
				map[string]any{"x": "b", "y": 2.5},
			},
		},
		{
			"nested",
			map[string]any{"series": []any{[]int{1, 2}, nil}, "meta": map[string]bool{"ok": true}},
			map[string]any{"series": []any{[]any{int64(1), int64(2)}, nil}, "meta": map[string]any{"ok": true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.value)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			norm, err := Normalize(tt.value)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if diff := cmp.Diff(norm, got); diff != "" {
				t.Errorf("Decode(Encode(v)) != Normalize(v) (-norm +got):\n%s", diff)
			}
		})
	}
}

func TestEncodePreservesOrder(t *testing.T) {
	in := []any{"z", "a", "m", 3, 1, 2}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := []any{"z", "a", "m", int64(3), int64(1), int64(2)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	type point struct{ X, Y int }
	n := 1

	tests := []struct {
		name  string
		value any
	}{
		{"struct", point{1, 2}},
		{"pointer", &n},
		{"channel", make(chan int)},
		{"func", func() {}},
		{"complex", complex(1, 2)},
		{"int keys", map[int]string{1: "a"}},
		{"resource handle", os.Stdout},
		{"nested struct", []any{1, point{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.value)
			if err == nil {
				t.Fatal("Encode() expected error, got nil")
			}
			if !errors.Is(err, ErrUnsupportedType) {
				t.Errorf("error = %v, want ErrUnsupportedType", err)
			}
			var ute *UnsupportedTypeError
			if !errors.As(err, &ute) {
				t.Errorf("error type = %T, want *UnsupportedTypeError", err)
			}
		})
	}
}

func TestEncodeDetectsCycles(t *testing.T) {
	t.Run("slice", func(t *testing.T) {
		s := make([]any, 1)
		s[0] = s
		_, err := Encode(s)
		var ute *UnsupportedTypeError
		if !errors.As(err, &ute) {
			t.Fatalf("error = %v, want *UnsupportedTypeError", err)
		}
		if ute.Reason != "cyclic structure" {
			t.Errorf("Reason = %q, want cyclic structure", ute.Reason)
		}
	})

	t.Run("map", func(t *testing.T) {
		m := map[string]any{}
		m["self"] = []any{m}
		_, err := Encode(m)
		if !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("error = %v, want ErrUnsupportedType", err)
		}
	})

	t.Run("shared but acyclic", func(t *testing.T) {
		shared := []any{1, 2}
		v := map[string]any{"a": shared, "b": shared}
		if _, err := Encode(v); err != nil {
			t.Fatalf("Encode() error = %v, want nil for shared subtree", err)
		}
	})

	t.Run("subslice of parent", func(t *testing.T) {
		s := []any{nil, nil}
		s[1] = s[:1]
		if _, err := Encode(s); err != nil {
			t.Fatalf("Encode() error = %v, want nil for subslice", err)
		}
	})
}

func TestUnsupportedPath(t *testing.T) {
	type point struct{ X, Y int }

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"root", point{}, "$"},
		{"index", []any{1, point{}}, "$[1]"},
		{"key", map[string]any{"a": point{}}, "$.a"},
		{"mixed", []any{1, map[string]any{"p": []any{point{}}}}, "$[1].p[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.value)
			var ute *UnsupportedTypeError
			if !errors.As(err, &ute) {
				t.Fatalf("Encode() error = %v, want *UnsupportedTypeError", err)
			}
			if ute.Path != tt.want {
				t.Errorf("Path = %q, want %q", ute.Path, tt.want)
			}
		})
	}
}

func nested(depth int) any {
	var v any = "leaf"
	for i := 0; i < depth; i++ {
		if i%2 == 0 {
			v = []any{v}
		} else {
			v = map[string]any{"k": v}
		}
	}
	return v
}

func TestNestingLimit(t *testing.T) {
	t.Run("at limit", func(t *testing.T) {
		data, err := Encode(nested(MaxDepth))
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if diff := cmp.Diff(nested(MaxDepth), got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("encode over limit", func(t *testing.T) {
		_, err := Encode(nested(MaxDepth + 1))
		var ute *UnsupportedTypeError
		if !errors.As(err, &ute) {
			t.Fatalf("Encode() error = %v, want *UnsupportedTypeError", err)
		}
		if ute.Reason != "nesting too deep" {
			t.Errorf("Reason = %q, want nesting too deep", ute.Reason)
		}
	})

	tests := []struct {
		name string
		data []byte
	}{
		{"arrays", append(bytes.Repeat([]byte{0x91}, 100000), 0xc0)},
		{"maps", append(bytes.Repeat([]byte{0x81, 0xa1, 'k'}, MaxDepth+1), 0xc0)},
		{"array16", append(bytes.Repeat([]byte{0xdc, 0x00, 0x01}, MaxDepth+1), 0x01)},
	}

	for _, tt := range tests {
		t.Run("decode "+tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			var ute *UnsupportedTypeError
			if !errors.As(err, &ute) {
				t.Fatalf("Decode() error = %v, want *UnsupportedTypeError", err)
			}
			if ute.Reason != "nesting too deep" {
				t.Errorf("Reason = %q, want nesting too deep", ute.Reason)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", []byte{0x92, 0x01}},
		{"trailing", []byte{0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, ErrUnsupportedType) {
				t.Errorf("Decode() error = %v, want ErrUnsupportedType", err)
			}
		})
	}
}

func TestEqualIsCanonical(t *testing.T) {
	a, err := Encode(map[string]any{"b": 1, "a": []any{"x"}})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	b, err := Encode(map[string]any{"a": []string{"x"}, "b": uint8(1)})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !Equal(a, b) {
		t.Error("Equal() = false for equal values")
	}

	c, err := Encode(map[string]any{"a": []any{"y"}, "b": 1})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if Equal(a, c) {
		t.Error("Equal() = true for different values")
	}
}

func TestCanonical(t *testing.T) {
	// positive fixint 1, as a non-canonical producer (e.g. a browser) would send it
	got, err := Canonical([]byte{0x01})
	if err != nil {
		t.Fatalf("Canonical() error = %v", err)
	}
	want, err := Encode(1)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !Equal(got, want) {
		t.Errorf("Canonical(fixint 1) = %x, want %x", got, want)
	}
}
