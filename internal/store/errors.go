package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrDatabase            = errors.New("database error")
	ErrSerialization       = errors.New("serialization error")
)

// Error carries the failing operation and one of the sentinel kinds above.
// errors.Is matches both the kind and the underlying driver error.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Wrap(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}
