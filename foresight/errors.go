package foresight

import (
	"errors"
	"fmt"
)

// Structural errors reject a model definition; they are not recoverable.
var (
	ErrDuplicateName         = errors.New("foresight: duplicate name")
	ErrUnknownEquation       = errors.New("foresight: unknown equation")
	ErrUnknownVariable       = errors.New("foresight: unknown variable")
	ErrConflictingConstraint = errors.New("foresight: conflicting constraint")
	ErrBoundaryReference     = errors.New("foresight: reference outside the simulation horizon")
	ErrInvalidModel          = errors.New("foresight: invalid model")
)

// Runtime errors. ErrSingularJacobian, ErrNonFinite and ErrCycling are always
// reported wrapped in a *DivergedError.
var (
	ErrSolverDiverged   = errors.New("foresight: solver diverged")
	ErrSingularJacobian = errors.New("singular Jacobian")
	ErrNonFinite        = errors.New("non-finite residual")
	ErrCycling          = errors.New("active set cycling")
	ErrMaxIter          = errors.New("iteration limit reached")
)

// DivergedError is returned when a solve does not converge. The path passed to
// the solver must not be used afterwards.
type DivergedError struct {
	Mode         Mode
	Iterations   int
	ResidualNorm float64
	Reason       error
}

func (e *DivergedError) Error() string {
	return fmt.Sprintf("foresight: %s solver diverged after %d iterations (residual %.3e): %v",
		e.Mode, e.Iterations, e.ResidualNorm, e.Reason)
}

func (e *DivergedError) Unwrap() error { return e.Reason }

// Is lets errors.Is(err, ErrSolverDiverged) match any DivergedError.
func (e *DivergedError) Is(target error) bool { return target == ErrSolverDiverged }

func errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
