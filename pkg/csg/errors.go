package csg

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers branch on. They are surfaced through
// APIError.Unwrap so errors.Is works against wrapped API failures.
var (
	// ErrNotLoggedIn means the session token is missing, invalid or expired.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrInvalidCredentials means the username+password combination was
	// rejected. Retrying with the same credentials will not help.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrQRCodeExpired means the login QR code timed out before being
	// scanned and confirmed.
	ErrQRCodeExpired = errors.New("qr code expired")
)

// APIError is a response envelope with a non-success status code.
type APIError struct {
	Sta     string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("csg api error sta=%s", e.Sta)
	}
	return fmt.Sprintf("csg api error sta=%s message=%s", e.Sta, e.Message)
}

// Unwrap maps known status codes onto sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Sta {
	case staNoLogin:
		return ErrNotLoggedIn
	case staWrongCredential:
		return ErrInvalidCredentials
	case staQRTimeout:
		return ErrQRCodeExpired
	}
	return nil
}

// HTTPError is a non-200 HTTP response from the API.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("csg http error status=%d", e.StatusCode)
}

func newAPIError(sta, message string) error {
	return &APIError{Sta: sta, Message: message}
}
