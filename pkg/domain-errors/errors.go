// Package dErrors provides typed domain errors with stable codes.
//
// Services return these so transport layers can translate them into HTTP
// responses without string matching, and so callers can branch on HasCode.
// Infrastructure facts (record missing, id taken) live in
// pkg/platform/sentinel; stores return those and services translate them
// into domain errors here.
package dErrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain error. Codes are part of the API
// surface: they appear verbatim in JSON error envelopes.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"

	// Attestation-specific codes. Callers must be able to distinguish
	// these outcomes rather than dig them out of the event log.
	CodeTamperDetected  Code = "tamper_detected"
	CodeRepairExhausted Code = "repair_exhausted"
)

// Error is a domain error carrying a code, a human-readable message, and
// an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a domain code and message while preserving the
// cause for errors.Is / errors.As inspection.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) is a domain error
// with the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is allows comparison against another domain error by code.
func (e *Error) Is(target error) bool {
	var de *Error
	if errors.As(target, &de) {
		return e.Code == de.Code
	}
	return false
}
