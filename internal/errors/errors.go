// Package errors defines the shared error taxonomy for license and update
// operations, and the RFC 7807 problem responses the HTTP surface renders
// from it.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for license operations. Callers classify failures with
// errors.Is; wrapped messages carry the server-supplied detail.
var (
	// ErrInvalidInput signals an empty or whitespace-only license key.
	// Detected locally, no network call is made.
	ErrInvalidInput = errors.New("license key is empty")

	// ErrNoLicenseFound signals an operation that requires a stored key
	// when none exists. Detected locally, no network call is made.
	ErrNoLicenseFound = errors.New("no license key found")

	// ErrThrottled signals a short-circuit because the endpoint failed at
	// the transport level within the last failure-cache window.
	ErrThrottled = errors.New("license server temporarily unavailable, retry later")

	// ErrTransport signals a connection error or request timeout.
	ErrTransport = errors.New("unable to connect to license server")

	// ErrServer signals a non-2xx response from the licensing API.
	ErrServer = errors.New("license server returned an error")

	// ErrMalformedResponse signals a 2xx response that is not valid JSON.
	ErrMalformedResponse = errors.New("invalid response from license server")

	// ErrWrongProduct signals a key that is valid but not entitled for
	// this product. Terminal: all local license state is cleared.
	ErrWrongProduct = errors.New("license key is not valid for this product")

	// ErrVerificationFailed signals a server-declared verification failure.
	ErrVerificationFailed = errors.New("license verification failed")

	// ErrLicenseExpired signals a license whose expiry date has passed.
	ErrLicenseExpired = errors.New("license expired")

	// ErrLicenseInvalid signals a license the server reports as not active,
	// or a payload too malformed to trust (fail closed).
	ErrLicenseInvalid = errors.New("license invalid")

	// ErrActivationFailed signals an activation the server rejected.
	ErrActivationFailed = errors.New("activation failed")

	// ErrDeactivationFailed signals a deactivation the server rejected.
	ErrDeactivationFailed = errors.New("deactivation failed")
)

// Transport wraps a transport-level failure with its cause
func Transport(err error) error {
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

// Server wraps a non-2xx server response with its status and message
func Server(statusCode int, message string) error {
	if message == "" {
		return fmt.Errorf("%w (HTTP %d)", ErrServer, statusCode)
	}
	return fmt.Errorf("%w (HTTP %d): %s", ErrServer, statusCode, message)
}

// WithMessage attaches a server-supplied message to a sentinel error,
// preserving errors.Is classification.
func WithMessage(sentinel error, message string) error {
	if message == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}

// IsTerminal reports whether an error clears all local license state
// (stored key, status record, and caches).
func IsTerminal(err error) bool {
	return errors.Is(err, ErrWrongProduct) || errors.Is(err, ErrVerificationFailed)
}

// IsRecoverable reports whether a verify failure may fall back to the
// last-known-good record: transport failures, throttling, and server
// errors degrade gracefully; everything else propagates.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrThrottled) || errors.Is(err, ErrServer)
}
