package recipe

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	// KindInvalidRequest means the caller input cannot select or satisfy a strategy.
	KindInvalidRequest ErrorKind = "INVALID_REQUEST"

	// KindSourceUnreachable means a page or image fetch failed.
	KindSourceUnreachable ErrorKind = "SOURCE_UNREACHABLE"

	// KindExtractionFailed means the model did not produce a usable structured payload.
	KindExtractionFailed ErrorKind = "EXTRACTION_FAILED"

	// KindNotFound means no recipe exists with the requested id.
	KindNotFound ErrorKind = "NOT_FOUND"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrSourceUnreachable = &Error{Kind: KindSourceUnreachable}
	ErrExtractionFailed  = &Error{Kind: KindExtractionFailed}
	ErrNotFound          = &Error{Kind: KindNotFound}
)

// Error is a classified pipeline error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap implements the unwrap interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so wrapped errors compare equal to the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// InvalidRequest creates a new invalid request error.
func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// SourceUnreachable wraps a fetch failure.
func SourceUnreachable(message string, err error) *Error {
	return &Error{Kind: KindSourceUnreachable, Message: message, Err: err}
}

// ExtractionFailed wraps an extraction failure.
func ExtractionFailed(message string, err error) *Error {
	return &Error{Kind: KindExtractionFailed, Message: message, Err: err}
}

// NotFound creates a new not found error for a recipe id.
func NotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("recipe %q not found", id)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
