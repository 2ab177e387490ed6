package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no entity exists under the requested key.
	ErrNotFound = errors.New("store: entity not found")
	// ErrAlreadyExists indicates a create collided with an existing key.
	ErrAlreadyExists = errors.New("store: entity already exists")
	// ErrVersionConflict indicates the entity changed since the caller read it.
	ErrVersionConflict = errors.New("store: version conflict")
	// ErrUnavailable indicates a transient backend failure.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// Error categorises backend failures. It satisfies repositories.RepositoryError.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// NewError builds an Error of the given kind. kind should be one of the package sentinels.
func NewError(op string, kind error, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := ""
	switch {
	case e.Err != nil && e.Kind != nil:
		msg = fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Err != nil:
		msg = e.Err.Error()
	case e.Kind != nil:
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// IsNotFound reports whether the entity was missing.
func (e *Error) IsNotFound() bool {
	return e != nil && e.Kind == ErrNotFound
}

// IsConflict reports whether the write lost an optimistic-concurrency race or collided on create.
func (e *Error) IsConflict() bool {
	return e != nil && (e.Kind == ErrVersionConflict || e.Kind == ErrAlreadyExists)
}

// IsUnavailable reports whether the failure is transient.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.Kind == ErrUnavailable
}

// IsNotFound reports whether err describes a missing entity.
func IsNotFound(err error) bool {
	var cls interface{ IsNotFound() bool }
	return errors.As(err, &cls) && cls.IsNotFound()
}

// IsConflict reports whether err describes a conflicting write.
func IsConflict(err error) bool {
	var cls interface{ IsConflict() bool }
	return errors.As(err, &cls) && cls.IsConflict()
}
