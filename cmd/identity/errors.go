package identity

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Store or by DeriveVersaID wraps
// exactly one of these, and the HTTP layer maps them to status codes.
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
)

// OpError carries the failing operation, its kind and optional detail.
// Detail never contains password hashes or session material.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string   { return describe(e.Op, e.Kind, e.Msg) }
func (e OpError) Unwrap() error   { return e.Kind }
func (e OpError) Is(k error) bool { return k == e.Kind }

// ConflictError is a uniqueness violation on Field ("username" or "email").
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string { return describe(e.Op, ErrConflict, e.Field) }
func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing user row. Resource names the lookup key.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string { return describe(e.Op, ErrNotFound, e.Resource) }
func (e NotFoundError) Unwrap() error { return ErrNotFound }

func describe(op string, kind error, detail string) string {
	if detail == "" {
		return fmt.Sprintf("%s: %v", op, kind)
	}
	return fmt.Sprintf("%s: %v: %s", op, kind, detail)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// ConflictField names the duplicated field, or "" for other errors.
func ConflictField(err error) string {
	if ce := (ConflictError{}); errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

func notFound(op, resource string) error {
	return NotFoundError{Op: op, Resource: resource}
}
