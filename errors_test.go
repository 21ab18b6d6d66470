package hxbind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pthm/hxbind/lib/encoding"
	"github.com/pthm/hxbind/lib/wire"
)

func TestSentinelErrors(t *testing.T) {
	errs := []error{
		ErrDuplicateBinding,
		ErrBindingNotFound,
		ErrDelivery,
		ErrUnsetSlot,
		ErrInvalidInput,
		ErrSessionClosed,
		ErrSessionNotFound,
		ErrUnsupportedType,
	}

	for i, err1 := range errs {
		for j, err2 := range errs {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v and %v", err1, err2)
			}
		}
	}
}

func TestDeliveryError(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&DeliveryError{Kind: wire.KindRender, Name: "chart", Err: cause})

	if !IsDelivery(err) {
		t.Error("IsDelivery() = false")
	}
	if !errors.Is(err, cause) {
		t.Error("DeliveryError does not unwrap to its cause")
	}
	if IsUnsupportedType(err) {
		t.Error("IsUnsupportedType() = true for delivery error")
	}
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"nil delivery", nil, IsDelivery, false},
		{"duplicate", &DuplicateBindingError{Name: "chart"}, IsDuplicateBinding, true},
		{"wrapped duplicate", fmt.Errorf("register: %w", &DuplicateBindingError{Name: "x"}), IsDuplicateBinding, true},
		{"unset", fmt.Errorf("%w: %q", ErrUnsetSlot, "x"), IsUnset, true},
		{"codec error", &encoding.UnsupportedTypeError{Reason: "cyclic structure"}, IsUnsupportedType, true},
		{"other", errors.New("other"), IsUnset, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err); got != tt.want {
				t.Errorf("predicate(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
