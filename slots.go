package hxbind

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pthm/hxbind/lib/encoding"
	"github.com/pthm/hxbind/lib/wire"
)

type unset struct{}

func (unset) String() string { return "<unset>" }

// Unset is returned by Value for inputs that never received an event.
// It is distinct from every legitimate value, including nil.
var Unset any = unset{}

// SlotState is a snapshot of one input slot.
type SlotState struct {
	Name     string
	Value    any // Unset until the first applied event
	Set      bool
	Revision uint64
	Mode     wire.DeliveryMode
}

type slot struct {
	raw      []byte // canonical encoding of value
	value    any
	set      bool
	revision uint64
	mode     wire.DeliveryMode
}

// InputRegistry holds the reactive input slots of one session and applies
// delivery-mode policy to incoming events.
type InputRegistry struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

// NewInputRegistry creates an empty registry.
func NewInputRegistry() *InputRegistry {
	return &InputRegistry{slots: make(map[string]*slot)}
}

// Register declares an input name. Declaring is optional: Apply creates
// slots on demand.
func (r *InputRegistry) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[name]; !ok {
		r.slots[name] = &slot{}
	}
}

// Apply applies ev to its slot and reports whether the slot changed.
//
// VALUE events equal (by canonical encoding) to the current value are
// coalesced: nothing changes and false is returned. EVENT events are always
// applied. Every applied event increments the slot revision.
func (r *InputRegistry) Apply(ev wire.InputEvent) (bool, error) {
	if ev.Input == "" {
		return false, fmt.Errorf("%w: empty input name", ErrInvalidInput)
	}
	if !ev.Mode.Valid() {
		return false, fmt.Errorf("%w: unknown delivery mode %q for %q", ErrInvalidInput, ev.Mode, ev.Input)
	}

	value, err := encoding.Decode(ev.Value)
	if err != nil {
		return false, fmt.Errorf("input %q: %w", ev.Input, err)
	}
	raw, err := encoding.Encode(value)
	if err != nil {
		return false, fmt.Errorf("input %q: %w", ev.Input, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[ev.Input]
	if !ok {
		s = &slot{}
		r.slots[ev.Input] = s
	}

	if ev.Mode == wire.ModeValue && s.set && encoding.Equal(s.raw, raw) {
		return false, nil
	}

	s.raw = raw
	s.value = value
	s.set = true
	s.mode = ev.Mode
	s.revision++
	return true, nil
}

// Get returns the current value of name and whether it is set.
func (r *InputRegistry) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[name]
	if !ok || !s.set {
		return nil, false
	}
	return s.value, true
}

// Value returns the current value of name, or Unset.
func (r *InputRegistry) Value(name string) any {
	v, ok := r.Get(name)
	if !ok {
		return Unset
	}
	return v
}

// IsSet reports whether name has received at least one applied event.
func (r *InputRegistry) IsSet(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Require returns the value of name or an error wrapping ErrUnsetSlot.
// Computations that get ErrUnsetSlot must abstain rather than run.
func (r *InputRegistry) Require(name string) (any, error) {
	v, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsetSlot, name)
	}
	return v, nil
}

// Guard runs fn with the values of names only when every one is set, and
// reports whether fn ran.
func (r *InputRegistry) Guard(fn func(values map[string]any), names ...string) bool {
	values := make(map[string]any, len(names))
	for _, name := range names {
		v, ok := r.Get(name)
		if !ok {
			return false
		}
		values[name] = v
	}
	fn(values)
	return true
}

// Revision returns the revision counter of name (0 before the first event).
func (r *InputRegistry) Revision(name string) uint64 {
	return r.Slot(name).Revision
}

// Slot returns a snapshot of name.
func (r *InputRegistry) Slot(name string) SlotState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := SlotState{Name: name, Value: Unset}
	if s, ok := r.slots[name]; ok {
		st.Revision = s.revision
		st.Mode = s.mode
		if s.set {
			st.Value = s.value
			st.Set = true
		}
	}
	return st
}

// Names returns the declared and applied input names, sorted.
func (r *InputRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.slots))
	for name := range r.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SlotHandle is the framework-facing handle for one registered input.
type SlotHandle struct {
	name string
	reg  *InputRegistry
}

// Name returns the input name.
func (h *SlotHandle) Name() string { return h.name }

// Get returns the value and whether it is set.
func (h *SlotHandle) Get() (any, bool) { return h.reg.Get(h.name) }

// Value returns the value or Unset.
func (h *SlotHandle) Value() any { return h.reg.Value(h.name) }

// IsSet reports whether the input has been set.
func (h *SlotHandle) IsSet() bool { return h.reg.IsSet(h.name) }

// Require returns the value or ErrUnsetSlot.
func (h *SlotHandle) Require() (any, error) { return h.reg.Require(h.name) }

// Revision returns the slot revision.
func (h *SlotHandle) Revision() uint64 { return h.reg.Revision(h.name) }
