package order

import (
	"errors"
	"fmt"
)

// Error categories surfaced by the kernel. Façades map these to client-visible
// error kinds; callers test with errors.Is.
var (
	ErrIllegalArgument   = errors.New("illegal argument")
	ErrUnknownObject     = errors.New("unknown object")
	ErrObjectExists      = errors.New("object already exists")
	ErrIllegalTransition = errors.New("illegal state transition")
)

// IllegalArgumentError reports a malformed value or a violated invariant.
type IllegalArgumentError struct {
	Param  string
	Reason string
}

func NewIllegalArgumentError(param, format string, args ...any) *IllegalArgumentError {
	return &IllegalArgumentError{Param: param, Reason: fmt.Sprintf(format, args...)}
}

func (e *IllegalArgumentError) Error() string {
	return fmt.Sprintf("illegal argument: %s: %s", e.Param, e.Reason)
}

func (e *IllegalArgumentError) Unwrap() error { return ErrIllegalArgument }

// UnknownObjectError reports a reference that does not resolve.
type UnknownObjectError struct {
	Kind Kind
	Name string
}

func NewUnknownObjectError(kind Kind, name string) *UnknownObjectError {
	return &UnknownObjectError{Kind: kind, Name: name}
}

func (e *UnknownObjectError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("unknown object: %q", e.Name)
	}
	return fmt.Sprintf("unknown object: %s %q", e.Kind, e.Name)
}

func (e *UnknownObjectError) Unwrap() error { return ErrUnknownObject }

// ObjectExistsError reports a name collision on creation.
type ObjectExistsError struct {
	Kind Kind
	Name string
}

func NewObjectExistsError(kind Kind, name string) *ObjectExistsError {
	return &ObjectExistsError{Kind: kind, Name: name}
}

func (e *ObjectExistsError) Error() string {
	return fmt.Sprintf("object already exists: %s %q", e.Kind, e.Name)
}

func (e *ObjectExistsError) Unwrap() error { return ErrObjectExists }

// IllegalTransitionError reports a state change the state machine does not
// allow. It matches both ErrIllegalTransition and ErrIllegalArgument.
type IllegalTransitionError struct {
	Object string
	From   string
	To     string
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	msg := fmt.Sprintf("illegal state transition: %s: %s -> %s", e.Object, e.From, e.To)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition || target == ErrIllegalArgument
}
