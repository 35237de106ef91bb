package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Fitting errors
	ErrConvergence          = errors.New("solver did not converge")
	ErrConstraintInfeasible = errors.New("equality constraints are infeasible")
	ErrBadStartValues       = errors.New("could not derive starting values")

	// Null model errors
	ErrMonotonicity     = errors.New("marginal curves are not monotonic in the same direction")
	ErrUnknownNullModel = errors.New("unknown null model variant")
	ErrOccupancyBracket = errors.New("occupancy equation has no bracketed root")

	// Statistic errors
	ErrSingularCovariance     = errors.New("covariance matrix is numerically singular")
	ErrInsufficientReplicates = errors.New("not enough replicate groups for variance model")
	ErrNoOffAxisPoints        = errors.New("no off-axis dose combinations in dataset")

	// Configuration errors
	ErrTransformPair  = errors.New("transform forward/inverse must be supplied together")
	ErrInvalidOption  = errors.New("unrecognized configuration option")
	ErrInvalidDataset = errors.New("invalid observation table")
)

// ConvergenceError reports which solver failed and the residual norm it
// reached, so a caller-level policy can decide whether to fall back.
type ConvergenceError struct {
	Solver       string
	Iterations   int
	ResidualNorm float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%v: %s after %d iterations (residual norm %.6g)",
		ErrConvergence, e.Solver, e.Iterations, e.ResidualNorm)
}

func (e *ConvergenceError) Unwrap() error { return ErrConvergence }

// NewConvergenceError creates a ConvergenceError for the given solver attempt
func NewConvergenceError(solver string, iterations int, residualNorm float64) error {
	return &ConvergenceError{Solver: solver, Iterations: iterations, ResidualNorm: residualNorm}
}

// Error constructors with context
func NewConstraintError(reason string) error {
	return fmt.Errorf("%w: %s", ErrConstraintInfeasible, reason)
}

func NewMonotonicityError(component string) error {
	return fmt.Errorf("%w: required by %s", ErrMonotonicity, component)
}

func NewSingularCovarianceError(component string) error {
	return fmt.Errorf("%w: reported by %s", ErrSingularCovariance, component)
}

func NewDatasetError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidDataset, reason)
}
