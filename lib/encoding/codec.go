package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxDepth bounds how deeply sequences and maps may nest.
const MaxDepth = 512

// ErrUnsupportedType is wrapped by every UnsupportedTypeError.
var ErrUnsupportedType = errors.New("encoding: unsupported type")

// UnsupportedTypeError reports a value outside the codec's closed type set,
// a cyclic structure, or bytes that do not decode to a supported value.
type UnsupportedTypeError struct {
	Type   reflect.Type // nil when decoding failed before a type was known
	Path   string       // location of the offending value, e.g. "$.rows[2]"
	Reason string
	Err    error
}

func (e *UnsupportedTypeError) Error() string {
	msg := "encoding: unsupported"
	if e.Type != nil {
		msg += " type " + e.Type.String()
	} else {
		msg += " value"
	}
	if e.Path != "" {
		msg += " at " + e.Path
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedTypeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUnsupportedType, e.Err}
	}
	return []error{ErrUnsupportedType}
}

// Encode serializes v into the canonical msgpack form.
//
// The supported set is closed: nil, bool, integers, floats, strings,
// slices/arrays of supported values and maps keyed by strings. Anything
// else (structs, pointers, channels, funcs, cycles) fails with
// *UnsupportedTypeError. Map keys are sorted so equal values always
// produce identical bytes.
func Encode(v any) ([]byte, error) {
	norm, err := Normalize(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(norm); err != nil {
		return nil, &UnsupportedTypeError{Type: reflect.TypeOf(v), Path: "$", Reason: "msgpack encode failed", Err: err}
	}
	return buf.Bytes(), nil
}

// Decode deserializes bytes produced by Encode (or any msgpack producer
// restricted to the supported set). The result is in normalized form:
// nil, bool, int64, uint64, float64, string, []any or map[string]any.
// Values nested deeper than MaxDepth are rejected before decoding.
func Decode(data []byte) (any, error) {
	if err := checkDepth(data); err != nil {
		return nil, err
	}
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	raw, err := dec.DecodeInterface()
	if err != nil {
		return nil, &UnsupportedTypeError{Path: "$", Reason: "malformed payload", Err: err}
	}
	if r.Len() != 0 {
		return nil, &UnsupportedTypeError{Path: "$", Reason: fmt.Sprintf("%d trailing bytes", r.Len())}
	}
	return Normalize(raw)
}

// Canonical re-encodes data so that it can be compared byte-for-byte with
// other canonical encodings.
func Canonical(data []byte) ([]byte, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Encode(v)
}

// Equal reports codec-level equality of two canonical encodings.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// Normalize converts v into the representation Decode returns, failing
// for anything outside the supported set.
func Normalize(v any) (any, error) {
	n := normalizer{visiting: make(map[visitKey]struct{})}
	return n.walk(reflect.ValueOf(v), nil, 0)
}

type visitKey struct {
	kind reflect.Kind
	ptr  uintptr
	len  int
}

// pathSeg is one step from the root to a nested value. The chain is only
// rendered when an error reports it.
type pathSeg struct {
	parent *pathSeg
	key    string
	index  int
	isKey  bool
}

func (p *pathSeg) String() string {
	var segs []*pathSeg
	for s := p; s != nil; s = s.parent {
		segs = append(segs, s)
	}
	var sb strings.Builder
	sb.WriteString("$")
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i].isKey {
			sb.WriteString(".")
			sb.WriteString(segs[i].key)
			continue
		}
		sb.WriteString("[")
		sb.WriteString(strconv.Itoa(segs[i].index))
		sb.WriteString("]")
	}
	return sb.String()
}

type normalizer struct {
	visiting map[visitKey]struct{}
}

// walk normalizes v found at path inside depth enclosing containers.
func (n normalizer) walk(v reflect.Value, path *pathSeg, depth int) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return n.walk(v.Elem(), path, depth)
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u <= math.MaxInt64 {
			return int64(u), nil
		}
		return u, nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Slice:
		if err := tooDeep(v, path, depth); err != nil {
			return nil, err
		}
		if v.IsNil() {
			return []any{}, nil
		}
		key := visitKey{kind: reflect.Slice, ptr: v.Pointer(), len: v.Len()}
		if err := n.enter(key, v, path); err != nil {
			return nil, err
		}
		defer delete(n.visiting, key)
		return n.walkSeq(v, path, depth+1)
	case reflect.Array:
		if err := tooDeep(v, path, depth); err != nil {
			return nil, err
		}
		return n.walkSeq(v, path, depth+1)
	case reflect.Map:
		if err := tooDeep(v, path, depth); err != nil {
			return nil, err
		}
		if v.IsNil() {
			return map[string]any{}, nil
		}
		key := visitKey{kind: reflect.Map, ptr: v.Pointer()}
		if err := n.enter(key, v, path); err != nil {
			return nil, err
		}
		defer delete(n.visiting, key)
		return n.walkMap(v, path, depth+1)
	}

	return nil, &UnsupportedTypeError{Type: v.Type(), Path: path.String(), Reason: "outside the supported value set"}
}

func tooDeep(v reflect.Value, path *pathSeg, depth int) error {
	if depth >= MaxDepth {
		return &UnsupportedTypeError{Type: v.Type(), Path: path.String(), Reason: "nesting too deep"}
	}
	return nil
}

func (n normalizer) enter(key visitKey, v reflect.Value, path *pathSeg) error {
	if key.ptr == 0 {
		return nil
	}
	if _, seen := n.visiting[key]; seen {
		return &UnsupportedTypeError{Type: v.Type(), Path: path.String(), Reason: "cyclic structure"}
	}
	n.visiting[key] = struct{}{}
	return nil
}

func (n normalizer) walkSeq(v reflect.Value, path *pathSeg, depth int) (any, error) {
	out := make([]any, v.Len())
	for i := range out {
		elem, err := n.walk(v.Index(i), &pathSeg{parent: path, index: i}, depth)
		if err != nil {
			return nil, err
		}
		out[i] = elem
	}
	return out, nil
}

func (n normalizer) walkMap(v reflect.Value, path *pathSeg, depth int) (any, error) {
	keys := v.MapKeys()
	names := make([]string, len(keys))
	byName := make(map[string]reflect.Value, len(keys))
	for i, k := range keys {
		kv := k
		if kv.Kind() == reflect.Interface && !kv.IsNil() {
			kv = kv.Elem()
		}
		if kv.Kind() != reflect.String {
			return nil, &UnsupportedTypeError{Type: v.Type(), Path: path.String(), Reason: "map keys must be strings"}
		}
		names[i] = kv.String()
		byName[names[i]] = v.MapIndex(k)
	}
	sort.Strings(names)

	out := make(map[string]any, len(names))
	for _, name := range names {
		elem, err := n.walk(byName[name], &pathSeg{parent: path, key: name, isKey: true}, depth)
		if err != nil {
			return nil, err
		}
		out[name] = elem
	}
	return out, nil
}

// checkDepth scans the first msgpack value in data without decoding it and
// fails if arrays and maps nest deeper than MaxDepth. Malformed or truncated
// input is left for the decoder to report.
func checkDepth(data []byte) error {
	var open []uint64 // elements still expected by each open container
	for i := 0; i < len(data); {
		b := data[i]
		size := 1
		var count uint64
		container := false

		switch {
		case b <= 0x7f, b >= 0xe0, b == 0xc0, b == 0xc2, b == 0xc3:
		case b >= 0x80 && b <= 0x8f:
			container, count = true, 2*uint64(b&0x0f)
		case b >= 0x90 && b <= 0x9f:
			container, count = true, uint64(b&0x0f)
		case b >= 0xa0 && b <= 0xbf:
			size += int(b & 0x1f)
		case b == 0xdc, b == 0xde:
			n, ok := bigEndian(data, i+1, 2)
			if !ok {
				return nil
			}
			container, count, size = true, n, 3
			if b == 0xde {
				count *= 2
			}
		case b == 0xdd, b == 0xdf:
			n, ok := bigEndian(data, i+1, 4)
			if !ok {
				return nil
			}
			container, count, size = true, n, 5
			if b == 0xdf {
				count *= 2
			}
		default:
			n, ok := scalarSize(data, i)
			if !ok {
				return nil
			}
			size = n
		}

		if container && len(open) >= MaxDepth {
			return &UnsupportedTypeError{Path: "$", Reason: "nesting too deep"}
		}
		i += size
		if len(open) > 0 {
			open[len(open)-1]--
		}
		if container && count > 0 {
			open = append(open, count)
		}
		for len(open) > 0 && open[len(open)-1] == 0 {
			open = open[:len(open)-1]
		}
		if len(open) == 0 {
			return nil
		}
	}
	return nil
}

// scalarSize returns the encoded size of the non-container value at data[i].
func scalarSize(data []byte, i int) (int, bool) {
	switch b := data[i]; b {
	case 0xca:
		return 5, true
	case 0xcb:
		return 9, true
	case 0xcc, 0xd0:
		return 2, true
	case 0xcd, 0xd1:
		return 3, true
	case 0xce, 0xd2:
		return 5, true
	case 0xcf, 0xd3:
		return 9, true
	case 0xd4, 0xd5, 0xd6, 0xd7, 0xd8:
		return 2 + 1<<(b-0xd4), true
	case 0xc4, 0xd9:
		n, ok := bigEndian(data, i+1, 1)
		return 2 + int(n), ok
	case 0xc5, 0xda:
		n, ok := bigEndian(data, i+1, 2)
		return 3 + int(n), ok
	case 0xc6, 0xdb:
		n, ok := bigEndian(data, i+1, 4)
		return 5 + int(n), ok
	case 0xc7:
		n, ok := bigEndian(data, i+1, 1)
		return 3 + int(n), ok
	case 0xc8:
		n, ok := bigEndian(data, i+1, 2)
		return 4 + int(n), ok
	case 0xc9:
		n, ok := bigEndian(data, i+1, 4)
		return 6 + int(n), ok
	}
	return 0, false
}

func bigEndian(data []byte, off, width int) (uint64, bool) {
	if off+width > len(data) {
		return 0, false
	}
	var n uint64
	for _, b := range data[off : off+width] {
		n = n<<8 | uint64(b)
	}
	return n, true
}
