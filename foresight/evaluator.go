package foresight

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// slot is a resolved read: path column, time offset, and whether the column
// is a free unknown (endogenous) or data (exogenous).
type slot struct {
	col  int
	off  int
	endo bool
}

// Evaluator computes the stacked residual F(X) and its sparse Jacobian J(X)
// for a fixed model and horizon. The free unknowns are the endogenous entries
// of periods 1..horizon-2; row (t-1)*nEq+e holds equation e at period t and
// column (t-1)*nEndo+k holds variable k at period t.
type Evaluator struct {
	model   *Model
	horizon int
	workers int
	nEndo   int
	nFree   int // free periods
	slots   [][]slot
}

// NewEvaluator resolves every equation read against the model and checks that
// no row reads outside [0, horizon-1].
func NewEvaluator(m *Model, horizon, workers int) (*Evaluator, error) {
	if horizon < 3 {
		return nil, errorf(ErrBoundaryReference, "horizon %d leaves no free period (need >= 3)", horizon)
	}
	e := &Evaluator{
		model:   m,
		horizon: horizon,
		workers: workers,
		nEndo:   m.NumEndogenous(),
		nFree:   horizon - 2,
	}

	first, last := 1, horizon-2
	for _, eq := range m.reg.eqs {
		ss := make([]slot, len(eq.Reads))
		for i, ref := range eq.Reads {
			k, ok := m.VarIndex(ref.Var)
			if !ok {
				return nil, errorf(ErrUnknownVariable, "equation %q reads %q", eq.Name, ref.Var)
			}
			if first+ref.Offset < 0 || last+ref.Offset > horizon-1 {
				return nil, errorf(ErrBoundaryReference, "equation %q reads %s(%+d), outside [0, %d]",
					eq.Name, ref.Var, ref.Offset, horizon-1)
			}
			ss[i] = slot{col: k, off: ref.Offset, endo: m.vars[k].Role == Endogenous}
		}
		e.slots = append(e.slots, ss)
	}
	return e, nil
}

// Size is the number of stacked equations (and free unknowns).
func (e *Evaluator) Size() int { return e.nFree * e.nEndo }

func (e *Evaluator) Horizon() int { return e.horizon }

// Row is the stacked row of equation eq at period t.
func (e *Evaluator) Row(t, eq int) int { return (t-1)*e.nEndo + eq }

// Column is the stacked column of endogenous variable k at period t.
func (e *Evaluator) Column(t, k int) int { return (t-1)*e.nEndo + k }

// FreeVector gathers the free entries of p into a stacked vector.
func (e *Evaluator) FreeVector(p *Path) []float64 {
	x := make([]float64, e.Size())
	for t := 1; t <= e.nFree; t++ {
		for k := 0; k < e.nEndo; k++ {
			x[e.Column(t, k)] = p.data.At(t, k)
		}
	}
	return x
}

// SetFree scatters a stacked vector back into p.
func (e *Evaluator) SetFree(p *Path, x []float64) {
	for t := 1; t <= e.nFree; t++ {
		for k := 0; k < e.nEndo; k++ {
			p.data.Set(t, k, x[e.Column(t, k)])
		}
	}
}

func (e *Evaluator) check(p *Path) error {
	if p.model != e.model {
		return errorf(ErrInvalidModel, "path belongs to a different model")
	}
	if p.Horizon() != e.horizon {
		return errorf(ErrBoundaryReference, "path horizon %d, evaluator horizon %d", p.Horizon(), e.horizon)
	}
	return nil
}

// Evaluate returns the stacked residual and Jacobian at p.
func (e *Evaluator) Evaluate(p *Path) (*mat.VecDense, *Jacobian, error) {
	if err := e.check(p); err != nil {
		return nil, nil, err
	}
	F := make([]float64, e.Size())
	parts := make([][]triplet, len(e.slots))
	if err := e.run(p, F, parts); err != nil {
		return nil, nil, err
	}

	// equation order keeps the assembly independent of goroutine scheduling
	nnz := 0
	for _, part := range parts {
		nnz += len(part)
	}
	ts := make([]triplet, 0, nnz)
	for _, part := range parts {
		ts = append(ts, part...)
	}
	return mat.NewVecDense(len(F), F), newJacobian(e.Size(), ts), nil
}

// Residuals returns only the stacked residual at p.
func (e *Evaluator) Residuals(p *Path) ([]float64, error) {
	if err := e.check(p); err != nil {
		return nil, err
	}
	F := make([]float64, e.Size())
	if err := e.run(p, F, nil); err != nil {
		return nil, err
	}
	return F, nil
}

// run evaluates every equation over all free periods. When parts is nil the
// Jacobian is skipped.
func (e *Evaluator) run(p *Path, F []float64, parts [][]triplet) error {
	if e.workers <= 1 {
		for i := range e.slots {
			if err := e.evalEquation(i, p, F, parts); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range e.slots {
		g.Go(func() error { return e.evalEquation(i, p, F, parts) })
	}
	return g.Wait()
}

func (e *Evaluator) evalEquation(i int, p *Path, F []float64, parts [][]triplet) error {
	eq := e.model.reg.eqs[i]
	ss := e.slots[i]
	x := make([]float64, len(ss))
	var grad []float64
	var ts []triplet
	if parts != nil {
		grad = make([]float64, len(ss))
		ts = make([]triplet, 0, e.nFree*len(ss))
	}

	for t := 1; t <= e.nFree; t++ {
		for j, s := range ss {
			x[j] = p.data.At(t+s.off, s.col)
		}
		f := eq.Residual(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("equation %q at period %d: %w", eq.Name, t, ErrNonFinite)
		}
		row := e.Row(t, i)
		F[row] = f
		if parts == nil {
			continue
		}

		if eq.Gradient != nil {
			for j := range grad {
				grad[j] = 0
			}
			eq.Gradient(x, grad)
		} else {
			fd.Gradient(grad, func(y []float64) float64 { return eq.Residual(y) }, x, &fd.Settings{Formula: fd.Central})
		}

		for j, s := range ss {
			if !s.endo {
				continue
			}
			tt := t + s.off
			if tt < 1 || tt > e.nFree {
				continue // boundary period, fixed
			}
			if math.IsNaN(grad[j]) || math.IsInf(grad[j], 0) {
				return fmt.Errorf("equation %q at period %d, derivative in %s(%+d): %w",
					eq.Name, t, e.model.vars[s.col].Name, s.off, ErrNonFinite)
			}
			ts = append(ts, triplet{row: row, col: e.Column(tt, s.col), val: grad[j]})
		}
	}
	if parts != nil {
		parts[i] = ts
	}
	return nil
}

// CheckJacobian compares the Jacobian at p with a central finite-difference
// approximation of the stacked residual and returns the largest absolute gap.
func (e *Evaluator) CheckJacobian(p *Path) (float64, error) {
	_, J, err := e.Evaluate(p)
	if err != nil {
		return 0, err
	}
	n := e.Size()
	work := p.Clone()
	var ferr error
	numeric := mat.NewDense(n, n, nil)
	fd.Jacobian(numeric, func(y, x []float64) {
		e.SetFree(work, x)
		if err := e.run(work, y, nil); err != nil && ferr == nil {
			ferr = err
		}
	}, e.FreeVector(p), &fd.JacobianSettings{Formula: fd.Central})
	if ferr != nil {
		return 0, ferr
	}

	var diff mat.Dense
	diff.Sub(numeric, J.Dense())
	maxErr := 0.0
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			if d := math.Abs(diff.At(i, k)); d > maxErr {
				maxErr = d
			}
		}
	}
	return maxErr, nil
}
