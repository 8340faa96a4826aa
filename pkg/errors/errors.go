package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindConflict            Kind = "conflict"
	KindIllegalTransition   Kind = "illegal_transition"
	KindIllegalState        Kind = "illegal_state"
	KindNotFound            Kind = "not_found"
	KindTransientProvider   Kind = "transient_provider"
	KindPermanentProvider   Kind = "permanent_provider"
	KindTimerReconciliation Kind = "timer_reconciliation"
	KindInternal            Kind = "internal"
)

// Stable error codes returned to API clients.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeConflict            = "CONFLICT"
	CodeIllegalTransition   = "ILLEGAL_TRANSITION"
	CodeIllegalState        = "ILLEGAL_STATE"
	CodeNotFound            = "NOT_FOUND"
	CodeTransientProvider   = "PROVIDER_UNAVAILABLE"
	CodePermanentProvider   = "PROVIDER_REJECTED"
	CodeTimerReconciliation = "TIMER_RECONCILIATION_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
)

var kindCodes = map[Kind]string{
	KindValidation:          CodeValidation,
	KindConflict:            CodeConflict,
	KindIllegalTransition:   CodeIllegalTransition,
	KindIllegalState:        CodeIllegalState,
	KindNotFound:            CodeNotFound,
	KindTransientProvider:   CodeTransientProvider,
	KindPermanentProvider:   CodePermanentProvider,
	KindTimerReconciliation: CodeTimerReconciliation,
	KindInternal:            CodeInternal,
}

// Error is the service-wide error type.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap implements the errors.Wrapper interface
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: kindCodes[kind], Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap wraps err with a kind and message. Returns nil for a nil err.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: kindCodes[kind], Message: message, Err: err}
}

func Validation(field, message string) *Error {
	e := New(KindValidation, message)
	e.Field = field
	return e
}

func Conflict(message string) *Error {
	return New(KindConflict, message)
}

func NotFound(resource string) *Error {
	return Newf(KindNotFound, "%s not found", resource)
}

func IllegalTransition(from, to string) *Error {
	return Newf(KindIllegalTransition, "cannot transition from %s to %s", from, to)
}

func IllegalState(message string) *Error {
	return New(KindIllegalState, message)
}

func Internal(err error, message string) *Error {
	return Wrap(err, KindInternal, message)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// CodeOf returns the stable code for err.
func CodeOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindIllegalTransition, KindIllegalState:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTransientProvider:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
