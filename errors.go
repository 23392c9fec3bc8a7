package thesisdesk

import (
	"errors"
	"fmt"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/earnings"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/storage"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("thesisdesk: not found")
	ErrAlreadyExists = errors.New("thesisdesk: already exists")
	ErrInvalidInput  = errors.New("thesisdesk: invalid input")

	// Chapter errors
	ErrChapterNotFound        = errors.New("thesisdesk: chapter not found")
	ErrDuplicateChapterNumber = errors.New("thesisdesk: chapter number already used by this owner")
	ErrChapterPaid            = errors.New("thesisdesk: chapter has a completed payment")
	ErrAttachmentTooLarge     = errors.New("thesisdesk: attachment exceeds size limit")
	ErrPricingLocked          = chapter.ErrPricingLocked

	// Payment errors
	ErrPaymentNotFound    = errors.New("thesisdesk: payment not found")
	ErrInvalidTransition  = payment.ErrInvalidTransition
	ErrChapterAlreadyPaid = payment.ErrChapterAlreadyPaid
	ErrNotDeletable       = payment.ErrNotDeletable
	ErrAmountMismatch     = payment.ErrAmountMismatch

	// Earnings errors
	ErrInsufficientEarnings = earnings.ErrInsufficientEarnings

	// Store errors
	ErrConflict        = errors.New("thesisdesk: record changed concurrently")
	ErrStoreNotReady   = errors.New("thesisdesk: store not ready")
	ErrStoreClosed     = errors.New("thesisdesk: store is closed")
	ErrMigrationFailed = errors.New("thesisdesk: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("thesisdesk: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a ValidationError for field. A nil err stays nil.
func Invalid(field string, err error) error {
	if err == nil {
		return nil
	}
	return ValidationError{Field: field, Message: err.Error(), Err: err}
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "thesisdesk: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("thesisdesk: %d errors occurred", len(e.Errors))
}

func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrOrNil returns e when it holds errors, nil otherwise.
func (e MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrChapterNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, storage.ErrBlobNotFound)
}

// IsValidation returns true if the caller supplied bad input.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrInvalidInput)
}

// IsRejected returns true if the request was well formed but a domain rule
// refused it.
func IsRejected(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrChapterAlreadyPaid) ||
		errors.Is(err, ErrNotDeletable) ||
		errors.Is(err, ErrAmountMismatch) ||
		errors.Is(err, ErrChapterPaid) ||
		errors.Is(err, ErrPricingLocked) ||
		errors.Is(err, ErrDuplicateChapterNumber) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrInsufficientEarnings) ||
		errors.Is(err, ErrAttachmentTooLarge)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrStoreNotReady)
}
