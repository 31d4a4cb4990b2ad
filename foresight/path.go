package foresight

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Path holds the full time path of every variable: rows are periods, columns
// follow Model.VarNames (endogenous first). Period 0 is the pre-shock initial
// condition and the last period is the terminal steady state; both are fixed.
type Path struct {
	model    *Model
	data     *mat.Dense
	initial  []float64
	terminal []float64
}

// NewPath builds a path of horizon periods. Interior periods start at the
// terminal state. Variables missing from initial or terminal default to 0.
func NewPath(m *Model, horizon int, initial, terminal map[string]float64) (*Path, error) {
	if horizon < 3 {
		return nil, errorf(ErrBoundaryReference, "horizon %d leaves no free period (need >= 3)", horizon)
	}
	K := m.NumVariables()

	init, err := stateVector(m, initial)
	if err != nil {
		return nil, err
	}
	term, err := stateVector(m, terminal)
	if err != nil {
		return nil, err
	}

	data := make([]float64, horizon*K)
	copy(data[:K], init)
	// Warm start: every other period sits at the terminal state
	for t := 1; t < horizon; t++ {
		copy(data[t*K:(t+1)*K], term)
	}

	return &Path{
		model:    m,
		data:     mat.NewDense(horizon, K, data),
		initial:  init,
		terminal: term,
	}, nil
}

func stateVector(m *Model, s map[string]float64) ([]float64, error) {
	out := make([]float64, m.NumVariables())
	for name, v := range s {
		i, ok := m.VarIndex(name)
		if !ok {
			return nil, errorf(ErrUnknownVariable, "%q in state", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errorf(ErrInvalidModel, "state value for %q is not finite", name)
		}
		out[i] = v
	}
	return out, nil
}

// ApplyShock overrides an exogenous entry. Later calls win at the same
// (variable, period).
func (p *Path) ApplyShock(variable string, period int, value float64) error {
	i, ok := p.model.VarIndex(variable)
	if !ok {
		return errorf(ErrUnknownVariable, "shock on %q", variable)
	}
	if p.model.vars[i].Role != Exogenous {
		return errorf(ErrInvalidModel, "shock on endogenous variable %q", variable)
	}
	if period < 0 || period >= p.Horizon() {
		return errorf(ErrBoundaryReference, "shock on %q at period %d, horizon is [0, %d]", variable, period, p.Horizon()-1)
	}
	p.data.Set(period, i, value)
	return nil
}

func (p *Path) Model() *Model { return p.model }

func (p *Path) Horizon() int {
	r, _ := p.data.Dims()
	return r
}

// At returns the value of variable column k at period t.
func (p *Path) At(t, k int) float64 { return p.data.At(t, k) }

// Set writes variable column k at period t.
func (p *Path) Set(t, k int, v float64) { p.data.Set(t, k, v) }

// Value returns a variable's value by name.
func (p *Path) Value(variable string, t int) (float64, error) {
	k, ok := p.model.VarIndex(variable)
	if !ok {
		return 0, errorf(ErrUnknownVariable, "%q", variable)
	}
	if t < 0 || t >= p.Horizon() {
		return 0, errorf(ErrBoundaryReference, "period %d", t)
	}
	return p.data.At(t, k), nil
}

// Series returns a copy of one variable's path.
func (p *Path) Series(variable string) ([]float64, error) {
	k, ok := p.model.VarIndex(variable)
	if !ok {
		return nil, errorf(ErrUnknownVariable, "%q", variable)
	}
	return mat.Col(nil, k, p.data), nil
}

// AsMatrix exposes the periods x variables view. Callers must not write to it.
func (p *Path) AsMatrix() mat.Matrix { return p.data }

// Clone returns an independent copy that shares only the model.
func (p *Path) Clone() *Path {
	c := &Path{
		model:    p.model,
		data:     mat.DenseCopyOf(p.data),
		initial:  append([]float64(nil), p.initial...),
		terminal: append([]float64(nil), p.terminal...),
	}
	return c
}

// Terminal returns the terminal state in column order.
func (p *Path) Terminal() []float64 { return append([]float64(nil), p.terminal...) }

// Initial returns the initial state in column order.
func (p *Path) Initial() []float64 { return append([]float64(nil), p.initial...) }

// IsTerminalAnchored checks that the last period's endogenous values still
// equal the terminal state.
func (p *Path) IsTerminalAnchored(tol float64) bool {
	last := p.Horizon() - 1
	for k := 0; k < p.model.nEndo; k++ {
		if math.Abs(p.data.At(last, k)-p.terminal[k]) > tol {
			return false
		}
	}
	return true
}

// Deviations returns the path minus the terminal state, period by period: the
// impulse response of every variable to the applied shocks.
func (p *Path) Deviations() *mat.Dense {
	T, K := p.data.Dims()
	out := mat.NewDense(T, K, nil)
	for t := 0; t < T; t++ {
		for k := 0; k < K; k++ {
			out.Set(t, k, p.data.At(t, k)-p.terminal[k])
		}
	}
	return out
}

// MaxAbsDiff returns the largest absolute difference between two paths of the
// same shape.
func MaxAbsDiff(a, b *Path) float64 {
	return floats.Distance(a.data.RawMatrix().Data, b.data.RawMatrix().Data, math.Inf(1))
}
