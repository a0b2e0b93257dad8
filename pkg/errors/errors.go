// Package errors defines the error taxonomy of the load core. Every failure
// that reaches the pipeline is classified into one of the sentinel kinds so
// it can be counted in the run summary by class name.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrMalformedSource    = errors.New("malformed source")
	ErrSinkWriteFailure   = errors.New("sink write failure")
	ErrDuplicateKey       = errors.New("duplicate ledger key")
	ErrConnectionFailure  = errors.New("connection failure")
)

// classes is ordered: the first matching kind names the error.
var classes = []struct {
	kind error
	name string
}{
	{ErrDuplicateKey, "DuplicateKey"},
	{ErrMalformedSource, "MalformedSource"},
	{ErrStorageUnavailable, "StorageUnavailable"},
	{ErrSinkWriteFailure, "SinkWriteFailure"},
	{ErrConnectionFailure, "ConnectionFailure"},
}

// LoadError attaches a kind and the failing operation to an underlying error.
type LoadError struct {
	Kind error
	Op   string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns a classified error with a formatted message and no cause.
func New(kind error, op string, format string, args ...any) error {
	return &LoadError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err as kind. An error that already carries a kind is
// returned with op context but keeps its original class.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &LoadError{Kind: kind, Op: op, Err: err}
}

// Classified reports whether err carries one of the taxonomy kinds.
func Classified(err error) bool {
	for _, c := range classes {
		if errors.Is(err, c.kind) {
			return true
		}
	}
	return false
}

// Class returns the class name recorded in the run summary.
func Class(err error) string {
	for _, c := range classes {
		if errors.Is(err, c.kind) {
			return c.name
		}
	}
	return "Unknown"
}

