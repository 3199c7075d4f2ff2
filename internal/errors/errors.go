package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session runtime
var (
	// Credential errors
	ErrEmptyToken     = errors.New("empty access token")
	ErrNoRefreshToken = errors.New("no refresh token available")

	// Token errors
	ErrAuthExpired   = errors.New("authorization expired")
	ErrRefreshFailed = errors.New("token refresh failed")
	ErrInvalidToken  = errors.New("invalid token")

	// Tenant context errors
	ErrContextInvalid       = errors.New("invalid tenant context")
	ErrEmptyEstablishmentID = errors.New("establishment id is required")

	// Service client errors
	ErrUnknownService = errors.New("unknown service")
	ErrInvalidBaseURL = errors.New("invalid base url")

	// Realtime errors
	ErrConnectionFailed = errors.New("realtime connection failed")
	ErrSendWhileClosed  = errors.New("realtime connection not open")
	ErrDisconnected     = errors.New("realtime channel disconnected")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is a passthrough to the standard library so callers need a single import
func New(text string) error {
	return errors.New(text)
}
