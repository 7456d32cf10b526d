// Package apperr holds the error taxonomy shared by the ledger, lookups, payments and
// tickets, and maps it onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrNotAuthenticated    = errors.New("authentication required")
	ErrNoEntitlement       = errors.New("no remaining checks for this product")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidPackage      = errors.New("unknown credit package")
	ErrUpstreamUnavailable = errors.New("vehicle data provider unavailable")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("not permitted")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrInvalidSignature    = errors.New("signature verification failed")
	ErrTicketClosed        = errors.New("ticket is closed")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailTaken          = errors.New("email already registered")
)

// ErrVehicleNotFound is returned when the provider has no record of a registration.
var ErrVehicleNotFound = &wrapped{msg: "vehicle not found", base: ErrNotFound}

type wrapped struct {
	msg  string
	base error
}

func (e *wrapped) Error() string { return e.msg }
func (e *wrapped) Unwrap() error { return e.base }

var statusByErr = []struct {
	err    error
	status int
}{
	{ErrNotAuthenticated, http.StatusUnauthorized},
	{ErrInvalidCredentials, http.StatusUnauthorized},
	{ErrNoEntitlement, http.StatusPaymentRequired},
	{ErrUnauthorized, http.StatusForbidden},
	{ErrVehicleNotFound, http.StatusNotFound},
	{ErrNotFound, http.StatusNotFound},
	{ErrInvalidPackage, http.StatusBadRequest},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrInvalidSignature, http.StatusBadRequest},
	{ErrInsufficientBalance, http.StatusConflict},
	{ErrEmailTaken, http.StatusConflict},
	{ErrTicketClosed, http.StatusConflict},
	{ErrConflict, http.StatusConflict},
	{ErrUpstreamUnavailable, http.StatusBadGateway},
}

// Status maps err onto an HTTP status code; unknown errors are 500.
func Status(err error) int {
	for _, s := range statusByErr {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing text for err. Internal errors never leak detail.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		// validation errors carry their detail in the wrapping message
		return err.Error()
	case errors.Is(err, ErrUpstreamUnavailable):
		return ErrUpstreamUnavailable.Error()
	}
	for _, s := range statusByErr {
		if errors.Is(err, s.err) {
			return s.err.Error()
		}
	}
	return "internal error"
}

// Invalid wraps a validation failure so callers can still match ErrInvalidInput.
func Invalid(msg string) error {
	return &wrapped{msg: msg, base: ErrInvalidInput}
}
