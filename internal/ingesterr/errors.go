// Package ingesterr defines the error kinds an ingest run can fail with.
// Every kind is fatal; callers use KindOf to pick an exit status.
package ingesterr

import (
	"errors"
	"fmt"
)

// Kind classifies an ingest failure.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors that carry no kind.
	KindUnknown Kind = iota
	// KindSource covers unreachable, truncated or undecodable input.
	KindSource
	// KindSchema covers type coercion failures and field mismatches.
	KindSchema
	// KindStorage covers connection, DDL and append failures at the destination.
	KindStorage
)

// String returns the kind's name as used in error messages.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source error"
	case KindSchema:
		return "schema error"
	case KindStorage:
		return "storage error"
	default:
		return "error"
	}
}

// Error is a classified ingest error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Source wraps err as a SourceError. An err that is already classified is
// returned unchanged so the innermost classification wins.
func Source(op string, err error) error {
	return wrap(KindSource, op, err)
}

// Schema wraps err as a SchemaError.
func Schema(op string, err error) error {
	return wrap(KindSchema, op, err)
}

// Storage wraps err as a StorageError.
func Storage(op string, err error) error {
	return wrap(KindStorage, op, err)
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindUnknown
}

// IsSource reports whether err is a SourceError.
func IsSource(err error) bool { return KindOf(err) == KindSource }

// IsSchema reports whether err is a SchemaError.
func IsSchema(err error) bool { return KindOf(err) == KindSchema }

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool { return KindOf(err) == KindStorage }
