package provision

import (
	"errors"
	"fmt"
)

// FormErrorKind classifies why a submitted form was refused.
type FormErrorKind int

const (
	// NotMultipart means the request body is not multipart/form-data.
	NotMultipart FormErrorKind = iota
	// MissingBoundary means the content type carries no boundary parameter.
	MissingBoundary
	// MissingField means a required field (ssid or password) is absent.
	MissingField
	// Malformed covers unreadable parts and oversized values.
	Malformed
)

func (k FormErrorKind) String() string {
	switch k {
	case NotMultipart:
		return "not multipart"
	case MissingBoundary:
		return "missing boundary"
	case MissingField:
		return "missing field"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("FormErrorKind(%d)", int(k))
	}
}

// FormError is returned by ParseForm.
type FormError struct {
	Kind  FormErrorKind
	Field string
	Err   error
}

func (e *FormError) Error() string {
	msg := "invalid form: " + e.Kind.String()
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormError) Unwrap() error {
	return e.Err
}

// Is matches another FormError of the same kind, so callers can compare
// against a bare &FormError{Kind: MissingField}.
func (e *FormError) Is(target error) bool {
	t, ok := target.(*FormError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// PersistError wraps a failure to write credentials to storage.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return "failed to store credentials: " + e.Err.Error()
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// IsFormError reports whether err is (or wraps) a FormError.
func IsFormError(err error) bool {
	var fe *FormError
	return errors.As(err, &fe)
}

// IsPersistError reports whether err is (or wraps) a PersistError.
func IsPersistError(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}
