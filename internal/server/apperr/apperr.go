// Package apperr defines the error taxonomy shared by the file lifecycle
// components. Every component-level failure is mapped to exactly one Kind
// before it reaches the request boundary.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindPath
	KindStorage
	KindConversionCapability
	KindConversionFailure
	KindConversionDirection
	KindPersistence
	KindNotFound
	KindAuthorization
	KindUnauthenticated
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPath:
		return "path"
	case KindStorage:
		return "storage"
	case KindConversionCapability:
		return "conversion_capability"
	case KindConversionFailure:
		return "conversion_failure"
	case KindConversionDirection:
		return "conversion_direction"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified failure with a human-readable reason.
// Field is set for validation failures that concern a single input.
type Error struct {
	Kind   Kind
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrFileTooLarge is wrapped by size validation failures.
var ErrFileTooLarge = errors.New("file exceeds maximum allowed size")

func Validation(field, reason string) error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

// TooLarge reports a size ceiling violation.
func TooLarge(limit int64) error {
	return &Error{
		Kind:   KindValidation,
		Field:  "file",
		Reason: fmt.Sprintf("file exceeds the maximum allowed size of %d bytes", limit),
		Err:    ErrFileTooLarge,
	}
}

func Path(candidate string) error {
	return &Error{Kind: KindPath, Reason: fmt.Sprintf("path %q is outside the staging area", candidate)}
}

func Storage(reason string, err error) error {
	return &Error{Kind: KindStorage, Reason: reason, Err: err}
}

// Capability reports that a required converter tool is not installed or not usable.
func Capability(tool string, err error) error {
	return &Error{Kind: KindConversionCapability, Reason: fmt.Sprintf("converter %s is not available", tool), Err: err}
}

// ConversionFailed reports that a converter ran but could not convert the input.
func ConversionFailed(reason string, err error) error {
	return &Error{Kind: KindConversionFailure, Reason: reason, Err: err}
}

// InvalidDirection reports a conversion direction that does not match the source kind.
func InvalidDirection(reason string) error {
	return &Error{Kind: KindConversionDirection, Reason: reason}
}

func Persistence(reason string, err error) error {
	return &Error{Kind: KindPersistence, Reason: reason, Err: err}
}

func NotFound(reason string) error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

func Forbidden(reason string) error {
	return &Error{Kind: KindAuthorization, Reason: reason}
}

func Unauthenticated() error {
	return &Error{Kind: KindUnauthenticated, Reason: "authentication required"}
}

func Conflict(reason string) error {
	return &Error{Kind: KindConflict, Reason: reason}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsConversion reports whether err is any of the conversion error subtypes.
func IsConversion(err error) bool {
	switch KindOf(err) {
	case KindConversionCapability, KindConversionFailure, KindConversionDirection:
		return true
	}
	return false
}

// Reason returns the human-readable reason of a classified error, or fallback.
func Reason(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return fallback
}
