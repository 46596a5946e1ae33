// Package apperr defines the closed error-kind taxonomy shared by every
// core component, so callers can branch on what went wrong without
// string-matching messages.
package apperr

import "fmt"

// Kind is one of the error kinds from the system's error handling design.
type Kind string

const (
	Validation          Kind = "validation"
	NotFound            Kind = "not_found"
	Duplicate           Kind = "duplicate"
	ConflictUserRequired Kind = "conflict_user_required"
	LLMUnavailable       Kind = "llm_unavailable"
	LLMModelMissing      Kind = "llm_model_missing"
	ExtractionParseError Kind = "extraction_parse_error"
	DBBusy               Kind = "db_busy"
	DBError              Kind = "db_error"
	RateLimited          Kind = "rate_limited"
	Auth                 Kind = "auth"
	InvalidUser          Kind = "invalid_user"
)

// Error is the concrete error type returned by core components.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as(err, &e) {
		return e.Kind == kind
	}
	return false
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err isn't an *Error.
func KindOf(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return ""
}
