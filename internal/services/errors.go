package services

import (
	"errors"
	"fmt"

	gateway "github.com/nimasrn/sms-credits/internal/gateways"
	"github.com/nimasrn/sms-credits/internal/repository"
)

// ErrValidation is the parent of every user correctable input error.
var ErrValidation = errors.New("validation error")

var (
	ErrInvalidPhone       = fmt.Errorf("%w: invalid phone number", ErrValidation)
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	ErrPlanOrAmount       = fmt.Errorf("%w: exactly one of plan or amount is required", ErrValidation)
	ErrMissingReference   = fmt.Errorf("%w: missing reference", ErrValidation)
	ErrEmptyBody          = fmt.Errorf("%w: message body cannot be empty", ErrValidation)
	ErrBodyTooLong        = fmt.Errorf("%w: message body exceeds maximum length", ErrValidation)
	ErrNoRecipients       = fmt.Errorf("%w: at least one recipient is required", ErrValidation)
	ErrTooManyRecipients  = fmt.Errorf("%w: too many recipients", ErrValidation)
	ErrInvalidRecipient   = fmt.Errorf("%w: invalid recipient", ErrValidation)
	ErrInvalidDeliveryRpt = fmt.Errorf("%w: delivery report needs a message id and status", ErrValidation)
)

// ErrNotFound is the parent of every missing entity error.
var ErrNotFound = errors.New("not found")

var (
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrPlanNotFound        = fmt.Errorf("plan %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrMessageNotFound     = fmt.Errorf("message %w", ErrNotFound)
)

var (
	// ErrUnknownReference is returned by Reconcile for a reference no
	// transaction carries. Gateways resend stale references, so callers log
	// it and move on.
	ErrUnknownReference = errors.New("unknown payment reference")

	ErrInsufficientCredits = repository.ErrInsufficientCredits
	ErrUpstream            = gateway.ErrUpstream
	ErrMalformedCallback   = gateway.ErrMalformedCallback
)

// translate maps repository sentinels onto the service ones and leaves
// everything else, transient store errors included, untouched.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrPlanNotFound):
		return ErrPlanNotFound
	case errors.Is(err, repository.ErrTransactionNotFound):
		return ErrTransactionNotFound
	case errors.Is(err, repository.ErrMessageNotFound):
		return ErrMessageNotFound
	}
	return err
}

// upstream makes sure a gateway failure is recognisable as ErrUpstream even
// when it came from the context or the transport.
func upstream(op string, err error) error {
	if errors.Is(err, ErrUpstream) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUpstream, err)
}
