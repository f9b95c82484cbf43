// Package errors carries the typed error codes that services return and the
// HTTP layer maps onto status codes and public messages.
package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// loyalty rule violations
	CodeInsufficientPoints Code = "INSUFFICIENT_POINTS"
	CodeTierTooLow         Code = "TIER_TOO_LOW"
	CodeSoldOut            Code = "SOLD_OUT"
)

// Metadata is how a code surfaces over HTTP. Only retryable codes are
// infrastructure failures; everything else is a business outcome.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, msg string, details bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", true),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", false),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", false),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", false),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", false),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", true),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", true),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", false),

	CodeInternal:   {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency: {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},

	CodeInsufficientPoints: meta(http.StatusUnprocessableEntity, "insufficient points", true),
	CodeTierTooLow:         meta(http.StatusForbidden, "tier too low", true),
	CodeSoldOut:            meta(http.StatusConflict, "reward sold out", true),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error with a caller-facing message and optional details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap keeps err reachable through errors.Is/As. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsDomain reports whether err is a typed business outcome as opposed to an
// infrastructure failure. Domain errors are never retried.
func IsDomain(err error) bool {
	typed := As(err)
	return typed != nil && !MetadataFor(typed.code).Retryable
}
