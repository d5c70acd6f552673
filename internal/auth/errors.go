package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrUnauthorized  = errors.New("auth: unauthorized")

	// ErrInvalidCredentials is deliberately generic: the same value is
	// returned for an unknown email and for a wrong password so that a
	// caller cannot enumerate registered accounts.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")

	// ErrAccountInaccessible is only returned after the credential check
	// succeeded, so surfacing the account state does not leak existence.
	ErrAccountInaccessible = errors.New("auth: account is not accessible")

	// ErrInvalidToken covers bad signature, malformed structure,
	// unsupported algorithm and expiry alike.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrMalformedToken and ErrWrongTokenType let Decode callers log
	// precisely; both still map to ErrInvalidToken at the transport layer.
	ErrMalformedToken = errors.New("auth: malformed token")
	ErrWrongTokenType = errors.New("auth: wrong token type")
)

// ValidationError reports a rejected field in a signup or profile payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("auth: validation failed: %s: %s", e.Field, e.Message)
}

func validationErr(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
