package recon

import (
	"errors"
	"fmt"
)

var (
	// ErrBatchAlreadyRunning is returned when a batch over the same working
	// set is triggered while a previous run still holds the batch lock.
	ErrBatchAlreadyRunning = errors.New("batch already running for working set")

	// ErrRecordNotFound is returned when an operation references an order
	// that has no reconciliation record.
	ErrRecordNotFound = errors.New("reconciliation record not found")

	// ErrNotDisputed is returned when a human resolution targets a record
	// that is not in the disputed state.
	ErrNotDisputed = errors.New("record is not disputed")

	// ErrIncompleteResolution is returned when a human resolution does not
	// cover every outstanding discrepancy.
	ErrIncompleteResolution = errors.New("resolution does not cover every outstanding discrepancy")
)

// ValidationError marks malformed input data (negative quantity, empty product
// code). The order is marked failed and is never retried blindly; it waits for
// upstream data to be corrected.
type ValidationError struct {
	OrderID string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for order %s: %s", e.OrderID, e.Reason)
}

// TransientError marks an external data-layer or network failure. It is
// retried per the tenant backoff policy before the order is marked failed.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// ConfigurationError marks invalid tolerance or policy configuration. It is
// fatal to the whole batch: processing orders against nonsensical policy could
// hide real discrepancies.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
