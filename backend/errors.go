package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vecmem/distance"
	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/metadata"
)

var (
	// ErrTenantConflict is returned when a scoped write targets an id owned by another tenant.
	ErrTenantConflict = errors.New("record belongs to another tenant")

	// ErrNilSnapshot is returned by Import for a nil snapshot.
	ErrNilSnapshot = errors.New("snapshot is nil")
)

// FailureError reports an operational failure of a driver.
//
// The original underlying error can be accessed via errors.Unwrap.
type FailureError struct {
	Backend string
	Op      string
	Err     error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// wrapFailure leaves caller errors untouched and marks everything else as a
// driver failure.
func wrapFailure(backend, op string, err error) error {
	if err == nil || isCallerError(err) {
		return err
	}
	var fe *FailureError
	if errors.As(err, &fe) {
		return err
	}
	return &FailureError{Backend: backend, Op: op, Err: err}
}

func isCallerError(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, index.ErrClosed),
		errors.Is(err, index.ErrEmptyVector),
		errors.Is(err, metadata.ErrUnsupportedOperator),
		errors.Is(err, metadata.ErrInvalidFilterValue),
		errors.Is(err, distance.ErrUnsupportedMetric),
		errors.Is(err, ErrTenantConflict),
		errors.Is(err, ErrNilSnapshot):
		return true
	}
	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return true
	}
	var ic *index.ErrInvalidConfiguration
	return errors.As(err, &ic)
}
