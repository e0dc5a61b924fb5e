// Package domainerrors defines the error type services return to callers.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into coded domain errors so transport layers can map a code to a
// response without knowing where the failure came from.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies a class of failure. Codes are stable strings and are
// exposed to API clients as the "error" field.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvalidRequest     Code = "invalid_request"
	CodeValidation         Code = "validation_error"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvalidState       Code = "invalid_state"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTooManyRequests    Code = "too_many_requests"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"

	// KYC taxonomy.
	CodeDuplicateUser       Code = "duplicate_user"
	CodeInvalidCredentials  Code = "invalid_credentials"
	CodeUserNotFound        Code = "user_not_found"
	CodeApplicationNotFound Code = "application_not_found"
	CodeStorageFailure      Code = "storage_failure"
)

// Error is a coded domain error. Err keeps the underlying cause for logging
// and errors.Is/As traversal; it is never shown to clients.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a domain error with the same code. An empty
// target message matches any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// New creates a domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost domain error in err's chain,
// or CodeInternal when there is none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// HTTPStatus maps a code to the status transport layers should respond with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput, CodeInvalidRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeUserNotFound, CodeApplicationNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeDuplicateUser, CodeInvalidState:
		return http.StatusConflict
	case CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeStorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
