package broker

import (
	"errors"
	"fmt"
)

// Credential failures collapse into one generic error: a caller must not be
// able to tell "never existed" from "expired" or "already consumed".
var (
	ErrInvalidCredential = errors.New("invalid or expired credential")
	ErrClientMismatch    = errors.New("credential was not issued to this client")
	ErrSessionExpired    = errors.New("authorization session is invalid or expired")
)

// ValidationError reports a malformed request that was rejected before any
// broker state was created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
