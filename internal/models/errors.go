package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized     = errors.New("ledger connection not initialized")
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrAlreadyRegistered  = errors.New("account already registered")
	ErrRegistrationFailed = errors.New("registration failed")
	ErrRideNotCompleted   = errors.New("ride is not completed")
	ErrNotAPassenger      = errors.New("client is not a passenger of this ride")
	ErrAlreadyPaid        = errors.New("payment already recorded for this ride")
	ErrPaymentFailed      = errors.New("payment failed")
)

var (
	ErrDriverNotFound    = fmt.Errorf("driver %w", ErrNotFound)
	ErrClientNotFound    = fmt.Errorf("client %w", ErrNotFound)
	ErrRideNotFound      = fmt.Errorf("ride %w", ErrNotFound)
	ErrRequestNotFound   = fmt.Errorf("ride request %w", ErrNotFound)
	ErrPassengerNotFound = fmt.Errorf("passenger %w", ErrNotFound)
	ErrRatingNotFound    = fmt.Errorf("rating %w", ErrNotFound)

	ErrInvalidScore = fmt.Errorf("%w: score must be an integer between 1 and 5", ErrValidation)
)

// Validationf builds an input error that maps to a 400 response.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
