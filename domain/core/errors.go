package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors
	ErrColumnNotFound  = errors.New("column not found")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrRowMisaligned   = errors.New("column length does not match row count")

	// Data quality errors
	ErrEmptySample      = errors.New("no complete rows after missing-value removal")
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrZeroVariance     = errors.New("dependent variable has a single observed level")
	ErrRankDeficient    = errors.New("design matrix is rank deficient")

	// Numerical errors
	ErrNotConverged = errors.New("optimizer did not converge")
	ErrNumerical    = errors.New("non-finite log-likelihood")
	ErrSeparation   = errors.New("outcome is perfectly predicted (separation)")
)

// Error constructors with context
func NewColumnNotFoundError(role, column string) error {
	return fmt.Errorf("%w: %s column %q", ErrColumnNotFound, role, column)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// Error checking helpers
func IsConfigError(err error) bool {
	return errors.Is(err, ErrColumnNotFound) ||
		errors.Is(err, ErrDuplicateColumn) ||
		errors.Is(err, ErrRowMisaligned)
}

func IsDataQualityError(err error) bool {
	return errors.Is(err, ErrEmptySample) ||
		errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrZeroVariance) ||
		errors.Is(err, ErrRankDeficient)
}

func IsNumericalError(err error) bool {
	return errors.Is(err, ErrNotConverged) ||
		errors.Is(err, ErrNumerical) ||
		errors.Is(err, ErrSeparation)
}
