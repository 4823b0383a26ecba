// Package apperr holds the error taxonomy shared by the gateway, the workflow
// packages and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrDeviceIncompatible means the face-ID module refused or could not start a session.
	ErrDeviceIncompatible = errors.New("incompatible device: could not connect to the face ID module")
	// ErrLostConnection means a verification poll failed after scanning began.
	ErrLostConnection = errors.New("lost connection to the security module")
	// ErrInvalidTransition is returned by state machines for undefined transitions.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNotAllowed is returned when an action is not exposed for the current state.
	ErrNotAllowed = errors.New("action not allowed")
	// ErrBusy is returned when the same action is already in flight.
	ErrBusy = errors.New("action already in progress")
	// ErrUnauthenticated is returned when no usable session exists.
	ErrUnauthenticated = errors.New("not authenticated")
)

// ValidationError is a client-side input error. It blocks submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// APIError is a non-2xx response from a remote API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NetworkError is a request that never produced a response. It is reported to
// users like an APIError with a generic message.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s failed: network error", e.Op)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps an error onto the status code the HTTP layer should answer with.
func HTTPStatus(err error) int {
	var (
		vErr   *ValidationError
		apiErr *APIError
		netErr *NetworkError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotAllowed), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 600 {
			return apiErr.Status
		}
		return http.StatusBadGateway
	case errors.As(err, &netErr), errors.Is(err, ErrDeviceIncompatible), errors.Is(err, ErrLostConnection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
