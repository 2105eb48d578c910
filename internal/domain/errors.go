package domain

import (
	"errors"
	"fmt"
)

var (
	ErrWalletUnavailable  = errors.New("wallet unavailable")
	ErrSubmissionRejected = errors.New("submission rejected by signer")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrGas                = errors.New("gas error")
	ErrAlreadySold        = errors.New("item already sold")
	ErrInvalidID          = errors.New("invalid item id")
	ErrSignerBinding      = errors.New("signer binding failed")
	ErrUnknownSubmission  = errors.New("submission failed")
	ErrNotConnected       = errors.New("no active session")
	ErrNotFound           = errors.New("not found")
)

// ValidationError describes a local input constraint failure. Requests
// failing validation are never submitted to the contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
