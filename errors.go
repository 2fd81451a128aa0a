package vecmem

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecmem/backend"
	"github.com/hupe1980/vecmem/distance"
	"github.com/hupe1980/vecmem/index"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("memory is closed")

	// ErrBackendFailure marks operational failures of the underlying engine.
	// The *backend.FailureError stays reachable through errors.As.
	ErrBackendFailure = errors.New("backend failure")

	// ErrTenantConflict is returned when a scoped write targets another tenant's record.
	ErrTenantConflict = backend.ErrTenantConflict
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidConfiguration reports a rejected setting. It is always returned
// before any I/O takes place.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidConfiguration struct {
	Field  string
	Value  any
	Reason string
	cause  error
}

func (e *ErrInvalidConfiguration) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ErrInvalidConfiguration) Unwrap() error { return e.cause }

func invalidConfig(field string, value any, reason string) error {
	return &ErrInvalidConfiguration{Field: field, Value: value, Reason: reason}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var ic *index.ErrInvalidConfiguration
	if errors.As(err, &ic) {
		return &ErrInvalidConfiguration{Field: ic.Field, Value: ic.Value, Reason: ic.Reason, cause: err}
	}
	if errors.Is(err, distance.ErrUnsupportedMetric) {
		return &ErrInvalidConfiguration{Field: "Metric", Reason: err.Error(), cause: err}
	}

	if errors.Is(err, index.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	var fe *backend.FailureError
	if errors.As(err, &fe) {
		return fmt.Errorf("%w: %w", ErrBackendFailure, err)
	}

	return err
}
