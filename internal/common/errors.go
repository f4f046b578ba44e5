package common

import (
	"errors"
	"net/http"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ErrorKind maps a sentinel error to its API code and status.
type ErrorKind struct {
	Target error
	Code   string
	Status int
}

// Classify converts err into an AppError using the first matching kind. The
// order of kinds matters when sentinels wrap each other. Unmatched errors
// become 500 INTERNAL so that unknown failures are never reported as input
// problems.
func Classify(err error, kinds []ErrorKind) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, k := range kinds {
		if errors.Is(err, k.Target) {
			return NewAppError(k.Code, err.Error(), k.Status, err)
		}
	}
	return NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
}
