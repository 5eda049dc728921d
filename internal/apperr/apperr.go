// Package apperr defines the error taxonomy surfaced by the HTTP services.
package apperr

import (
	"errors"
	"net/http"
)

const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeDependency = "DEPENDENCY_UNAVAILABLE"
	CodeInternal   = "INTERNAL_ERROR"
)

type Error struct {
	Status  int
	Code    string
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(msg string, details interface{}) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: msg, Details: details}
}

// Unprocessable is a validation failure on a structurally decodable body.
func Unprocessable(msg string, details interface{}) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Code: CodeValidation, Message: msg, Details: details}
}

func NotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: msg}
}

func Dependency(msg string, err error) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: CodeDependency, Message: msg, Err: err}
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error", Err: err}
}

// From converts any error into an *Error, defaulting to an internal error.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
