package status

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by how callers are expected to react.
type Kind int

const (
	KindValidation Kind = iota
	KindConflict
	KindAuth
	KindPayment
	KindPersistence
)

// Error is a machine-readable error. Two Errors with the same Code match
// through errors.Is regardless of message, so the sentinels below can be
// rephrased with contextual detail via Withf without losing identity.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Withf returns a copy of the error carrying a contextual message,
// e.g. "seat 12 is already booked".
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	// Validation
	ErrSeatOutOfRange    = &Error{KindValidation, "SEAT_OUT_OF_RANGE", "seat number is out of range"}
	ErrSeatNotFound      = &Error{KindValidation, "SEAT_NOT_FOUND", "seat does not exist"}
	ErrInvalidShift      = &Error{KindValidation, "INVALID_SHIFT", "unknown shift tag"}
	ErrInvalidMonths     = &Error{KindValidation, "INVALID_MONTHS", "months must be at least 1"}
	ErrInvalidReason     = &Error{KindValidation, "INVALID_REASON", "unknown release reason"}
	ErrProfileIncomplete = &Error{KindValidation, "PROFILE_INCOMPLETE", "profile must have name, email and phone before booking"}
	ErrOrderNotFound     = &Error{KindValidation, "ORDER_NOT_FOUND", "order not found"}
	ErrPaymentNotFound   = &Error{KindValidation, "PAYMENT_NOT_FOUND", "payment not found"}

	// Conflict
	ErrSeatTaken       = &Error{KindConflict, "SEAT_TAKEN", "seat is already booked"}
	ErrOneSeatLimit    = &Error{KindConflict, "ONE_SEAT_LIMIT", "account already holds a seat"}
	ErrNoActiveBooking = &Error{KindConflict, "NO_ACTIVE_BOOKING", "seat has no active booking"}
	ErrNotSeatOwner    = &Error{KindConflict, "NOT_SEAT_OWNER", "seat is booked by another account"}
	ErrSeatOccupied    = &Error{KindConflict, "SEAT_OCCUPIED", "seat is occupied and cannot change status"}
	ErrOrderNotPending = &Error{KindConflict, "ORDER_NOT_PENDING", "order is no longer pending"}
	ErrBookingConflict = &Error{KindConflict, "BOOKING_CONFLICT_AFTER_PAYMENT", "payment captured but the seat was taken; contact support with your payment id"}

	// Auth
	ErrSessionInvalid = &Error{KindAuth, "SESSION_INVALID", "session is not valid, sign in again"}
	ErrSessionExpired = &Error{KindAuth, "SESSION_EXPIRED", "session expired, sign in again"}

	// Payment
	ErrSignatureMismatch   = &Error{KindPayment, "SIGNATURE_MISMATCH", "payment signature verification failed"}
	ErrVerificationTimeout = &Error{KindPayment, "VERIFICATION_TIMEOUT", "payment gateway timed out, check your dashboard before retrying"}
	ErrGatewayRejected     = &Error{KindPayment, "GATEWAY_REJECTED", "payment gateway rejected the request"}

	// Persistence
	ErrStorageUnavailable = &Error{KindPersistence, "STORAGE_UNAVAILABLE", "storage is unavailable"}
)

// HTTPStatus maps an error onto the HTTP status handlers answer with.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAuth:
		return http.StatusUnauthorized
	case KindPayment:
		return http.StatusBadGateway
	case KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code extracts the machine code, or an empty string for unclassified errors.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
