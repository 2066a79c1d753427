package billing

import (
	"errors"
	"fmt"
)

var (
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrInvoiceNotFound = errors.New("invoice not found")

	// Eligibility failures. Checked in this order, before any write.
	ErrVehicleInactive = errors.New("vehicle is inactive")
	ErrVehicleSold     = errors.New("vehicle is sold")
	ErrVehicleNoOwner  = errors.New("vehicle has no owner")
	ErrNoMonthlyFee    = errors.New("vehicle has no monthly fee")

	ErrInvalidPeriod  = errors.New("invalid billing period: expected YYYY-MM")
	ErrInvalidPayment = errors.New("invalid payment")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvoiceClosed  = errors.New("invoice is cancelled or refunded")
	ErrNothingPaid    = errors.New("invoice has no cleared payments to refund")

	// ErrConcurrentModification is returned when a versioned save loses a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// ValidationError carries the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
	kind   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s %s", e.kind, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}

// InvalidPayment builds a payment validation error for field.
func InvalidPayment(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason, kind: ErrInvalidPayment}
}

// Invalid builds a generic validation error for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason, kind: ErrInvalidInput}
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrVehicleNotFound) || errors.Is(err, ErrInvoiceNotFound)
}

// IsInvalidState returns true if the vehicle or invoice cannot take part in the operation.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrVehicleInactive) ||
		errors.Is(err, ErrVehicleSold) ||
		errors.Is(err, ErrVehicleNoOwner) ||
		errors.Is(err, ErrNoMonthlyFee)
}

// IsConflict returns true if the invoice's current state forbids the operation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvoiceClosed) || errors.Is(err, ErrNothingPaid)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) || errors.Is(err, ErrInvalidPayment) || errors.Is(err, ErrInvalidInput)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
