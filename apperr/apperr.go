// Package apperr defines the typed error kinds shared across the registry core.
//
// Every error kind carries the HTTP status and OperationOutcome issue code that
// rest uses to build a response, following the error enum in
// original_source/src/errors.rs and the status mapping performed by
// damedic-fhir-toolbox-go/rest/internal/outcome.
package apperr

import "fmt"

// Kind identifies the category of a registry error.
type Kind string

const (
	KindBadRequest       Kind = "bad-request"
	KindNotFound         Kind = "not-found"
	KindSchemaValidation Kind = "schema-validation"
	KindEval             Kind = "eval-error"
	KindStorage          Kind = "storage-error"
	KindTimeout          Kind = "timeout"
)

// Status returns the HTTP status code associated with a Kind.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest, KindSchemaValidation, KindEval:
		return 400
	case KindNotFound:
		return 404
	case KindTimeout:
		return 504
	case KindStorage:
		return 500
	default:
		return 500
	}
}

// IssueCode returns the OperationOutcome issue type code for a Kind.
func (k Kind) IssueCode() string {
	switch k {
	case KindBadRequest:
		return "invalid"
	case KindNotFound:
		return "not-found"
	case KindSchemaValidation:
		return "structure"
	case KindEval:
		return "processing"
	case KindStorage:
		return "transient"
	case KindTimeout:
		return "timeout"
	default:
		return "exception"
	}
}

// Error is a typed registry error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func BadRequest(format string, args ...any) *Error { return New(KindBadRequest, format, args...) }
func NotFound(format string, args ...any) *Error   { return New(KindNotFound, format, args...) }
func SchemaValidation(format string, args ...any) *Error {
	return New(KindSchemaValidation, format, args...)
}
func Eval(format string, args ...any) *Error    { return New(KindEval, format, args...) }
func Storage(err error, format string, args ...any) *Error {
	return Wrap(KindStorage, err, format, args...)
}
func Timeout(format string, args ...any) *Error { return New(KindTimeout, format, args...) }

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errAs(err, &e) {
		return e, true
	}
	return nil, false
}

func errAs(err error, target **Error) bool {
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
