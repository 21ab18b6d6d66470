package hxbind

import (
	"errors"
	"fmt"

	"github.com/pthm/hxbind/lib/encoding"
	"github.com/pthm/hxbind/lib/wire"
)

// Sentinel errors for bridge operations.
var (
	ErrDuplicateBinding = errors.New("hxbind: duplicate binding")
	ErrBindingNotFound  = errors.New("hxbind: binding not found")
	ErrDelivery         = errors.New("hxbind: delivery failed")
	ErrUnsetSlot        = errors.New("hxbind: input slot unset")
	ErrInvalidInput     = errors.New("hxbind: invalid input event")
	ErrSessionClosed    = errors.New("hxbind: session closed")
	ErrSessionNotFound  = errors.New("hxbind: session not found")

	// ErrUnsupportedType is the codec's sentinel, re-exported for callers
	// that only import hxbind.
	ErrUnsupportedType = encoding.ErrUnsupportedType
)

// UnsupportedTypeError is the codec's typed error.
type UnsupportedTypeError = encoding.UnsupportedTypeError

// DuplicateBindingError is returned when an output name is registered twice
// within one session.
type DuplicateBindingError struct {
	Name string
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("hxbind: binding %q already registered", e.Name)
}

func (e *DuplicateBindingError) Unwrap() error {
	return ErrDuplicateBinding
}

// DeliveryError reports a transport that could not take a message.
// Nothing retries it; the caller decides.
type DeliveryError struct {
	Kind wire.Kind
	Name string // binding or input name
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("hxbind: %s %q not delivered: %v", e.Kind, e.Name, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDelivery, e.Err}
}

// IsUnsupportedType checks if err is a codec type error.
func IsUnsupportedType(err error) bool {
	return errors.Is(err, ErrUnsupportedType)
}

// IsDelivery checks if err is a delivery error.
func IsDelivery(err error) bool {
	return errors.Is(err, ErrDelivery)
}

// IsUnset checks if err reports a read of a never-set input slot.
func IsUnset(err error) bool {
	return errors.Is(err, ErrUnsetSlot)
}

// IsDuplicateBinding checks if err is a binding name collision.
func IsDuplicateBinding(err error) bool {
	return errors.Is(err, ErrDuplicateBinding)
}
