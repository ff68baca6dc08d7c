package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	ErrNotFound          = errors.New("resource not found")
	ErrDatasetNotFound   = fmt.Errorf("%w: dataset", ErrNotFound)
	ErrCheckpointMissing = fmt.Errorf("%w: checkpoint", ErrNotFound)

	// Invariant violations on data entering or leaving the pipeline
	ErrNotHermitian     = errors.New("observable is not hermitian")
	ErrSpectrumOutside  = errors.New("observable eigenvalue outside [-1, 1]")
	ErrNotStochastic    = errors.New("probability row is not a distribution")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrEmptyDataset     = errors.New("dataset is empty")
	ErrUnknownGate      = errors.New("unknown gate")
	ErrQubitOutOfRange  = errors.New("qubit index out of range")
	ErrNonDeterministic = errors.New("non-deterministic result")
)

// NewShapeError reports a dimension mismatch between what a component expects and what it got
func NewShapeError(what string, want, got int) error {
	return fmt.Errorf("%w: %s expected %d, got %d", ErrShapeMismatch, what, want, got)
}
