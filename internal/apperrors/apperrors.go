// Package apperrors defines the error taxonomy shared by the booking engine
// and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how a caller is expected to react to them.
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation rejects bad input before any state is touched.
	KindValidation
	KindNotFound
	// KindForbidden is terminal for the actor on that resource.
	KindForbidden
	// KindConflict means a race was lost or a precondition no longer holds.
	// Callers refresh state before retrying.
	KindConflict
	// KindTrust covers tampered or inconsistent payment payloads. Never retried.
	KindTrust
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindTrust:
		return "trust"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Codes surfaced to API clients.
const (
	CodeValidation        = "Validation"
	CodeNotFound          = "NotFound"
	CodeForbidden         = "Forbidden"
	CodeInvalidSchedule   = "InvalidSchedule"
	CodeAlreadyCancelled  = "AlreadyCancelled"
	CodeRideNotActive     = "RideNotActive"
	CodeRideDeparted      = "RideDeparted"
	CodeVehicleRequired   = "VehicleRequired"
	CodeInvalidTransition = "InvalidTransition"
	CodeInsufficientSeats = "InsufficientSeats"
	CodeInvalidLocation   = "InvalidLocation"
	CodeNotAccepted       = "NotAccepted"
	CodeAlreadyPaid       = "AlreadyPaid"
	CodeBookingLapsed     = "BookingLapsed"
	CodeNotPayable        = "NotPayable"
	CodeSignatureInvalid  = "SignatureInvalid"
	CodeGatewayRejected   = "GatewayRejected"
	CodeConcurrentUpdate  = "ConcurrentUpdate"
	CodeAlreadyExists     = "AlreadyExists"
	CodeUnauthorized      = "Unauthorized"
	CodeInternal          = "Internal"
)

// Error is the single error type returned by the services layer.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can write errors.Is(err, apperrors.ErrInsufficientSeats).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of e carrying an extra detail.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound          = newError(KindNotFound, CodeNotFound, "resource not found")
	ErrForbidden         = newError(KindForbidden, CodeForbidden, "not allowed")
	ErrInvalidSchedule   = newError(KindValidation, CodeInvalidSchedule, "invalid schedule")
	ErrAlreadyCancelled  = newError(KindConflict, CodeAlreadyCancelled, "ride already cancelled")
	ErrRideNotActive     = newError(KindConflict, CodeRideNotActive, "ride is not active")
	ErrRideDeparted      = newError(KindConflict, CodeRideDeparted, "ride date has passed")
	ErrVehicleRequired   = newError(KindValidation, CodeVehicleRequired, "a vehicle profile is required")
	ErrInvalidTransition = newError(KindConflict, CodeInvalidTransition, "invalid booking transition")
	ErrInsufficientSeats = newError(KindConflict, CodeInsufficientSeats, "not enough seats available")
	ErrInvalidLocation   = newError(KindValidation, CodeInvalidLocation, "location is not served by this ride")
	ErrNotAccepted       = newError(KindConflict, CodeNotAccepted, "booking is not accepted")
	ErrAlreadyPaid       = newError(KindConflict, CodeAlreadyPaid, "booking is already paid")
	ErrBookingLapsed     = newError(KindConflict, CodeBookingLapsed, "ride date has passed")
	ErrNotPayable        = newError(KindValidation, CodeNotPayable, "booking has no payable amount")
	ErrSignatureInvalid  = newError(KindTrust, CodeSignatureInvalid, "payment verification failed")
	ErrGatewayRejected   = newError(KindTrust, CodeGatewayRejected, "payment verification failed")
	ErrConcurrentUpdate  = newError(KindConflict, CodeConcurrentUpdate, "resource was modified concurrently")
	ErrAlreadyExists     = newError(KindConflict, CodeAlreadyExists, "resource already exists")
	ErrUnauthorized      = newError(KindUnauthorized, CodeUnauthorized, "invalid credentials")
)

// Validation builds a validation error for a single field.
func Validation(field, msg string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeValidation,
		Message: msg,
		Details: map[string]any{"field": field},
	}
}

// NotFound builds a not-found error naming the resource.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: resource + " not found"}
}

// Forbidden builds an authorization error with a reason.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: msg}
}

// Transition builds an InvalidTransition error describing the rejected move.
func Transition(from, event string) *Error {
	return ErrInvalidTransition.
		WithDetail("status", from).
		WithDetail("event", event)
}

// Internal wraps an unexpected error.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: msg, Err: err}
}

// Wrap wraps err with a sentinel while keeping the sentinel's code and kind.
func Wrap(sentinel *Error, err error) *Error {
	cp := *sentinel
	cp.Err = err
	return &cp
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindTrust:
		return http.StatusPaymentRequired
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
