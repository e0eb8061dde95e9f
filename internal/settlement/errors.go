package settlement

import (
	"errors"

	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
)

var (
	ErrInvalidLoad      = errors.New("invalid_load")
	ErrUnknownMaterial  = errors.New("unknown_material")
	ErrPublishFailure   = errors.New("publish_failure")
	ErrDeliveryNotFound = errors.New("delivery_not_found")

	ErrCapacityExceeded = recyclerdomain.ErrCapacityExceeded
	ErrUnknownRecycler  = recyclerdomain.ErrUnknownRecycler
)

// IsTerminal reports failures that must not be retried automatically.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrInvalidLoad) ||
		errors.Is(err, ErrUnknownMaterial) ||
		errors.Is(err, ErrUnknownRecycler) ||
		errors.Is(err, recyclerdomain.ErrInvalidAmount)
}

// IsRecoverable reports failures after which the delivery stays eligible for
// a later run.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) || errors.Is(err, ErrPublishFailure)
}

// ReasonCode is the failure code stored on a delivery.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidLoad), errors.Is(err, recyclerdomain.ErrInvalidAmount):
		return ErrInvalidLoad.Error()
	case errors.Is(err, ErrUnknownMaterial):
		return ErrUnknownMaterial.Error()
	case errors.Is(err, ErrUnknownRecycler):
		return ErrUnknownRecycler.Error()
	case errors.Is(err, ErrCapacityExceeded):
		return ErrCapacityExceeded.Error()
	case errors.Is(err, ErrPublishFailure):
		return ErrPublishFailure.Error()
	default:
		return "unknown"
	}
}
