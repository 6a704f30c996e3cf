// Package faults defines the closed set of error kinds surfaced by the
// memory engine. Callers match on Kind rather than on error strings or
// storage driver codes.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind string

const (
	InvalidInput         Kind = "invalid_input"
	MemoryNotFound       Kind = "memory_not_found"
	InvalidTier          Kind = "invalid_tier"
	EmbedFailed          Kind = "embed_failed"
	SubstrateUnavailable Kind = "substrate_unavailable"
	StorageFailed        Kind = "storage_failed"
	ConfigInvalid        Kind = "config_invalid"
	Conflict             Kind = "conflict"
)

// Error is a kinded engine error with optional structured details.
type Error struct {
	Kind    Kind
	Msg     string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying cause. A nil cause returns nil.
func Wrap(kind Kind, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

// With adds a detail entry and returns the error for chaining.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf extracts the kind from err, or StorageFailed if err carries none.
// A nil err reports an empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return StorageFailed
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
