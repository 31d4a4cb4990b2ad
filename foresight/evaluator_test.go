package foresight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluator_BoundaryReference(t *testing.T) {
	for _, src := range []string{"x = x(-2) + e", "x = x(+2) + e"} {
		b := NewBuilder(ModeNewton)
		require.NoError(t, b.Endogenous("x", ""))
		require.NoError(t, b.Exogenous("e", ""))
		require.NoError(t, b.EquationExpr("law", src))
		m, err := b.Build()
		require.NoError(t, err)

		_, err = NewEvaluator(m, 10, 1)
		assert.ErrorIs(t, err, ErrBoundaryReference, src)
	}
}

// Row and column layout: block t-1 holds period t.
func TestEvaluator_Layout(t *testing.T) {
	m := nkModel(t, ModeMCP)
	ev, err := NewEvaluator(m, 6, 1)
	require.NoError(t, err)

	assert.Equal(t, 12, ev.Size())
	assert.Equal(t, 3*1+2, ev.Row(2, 2))
	assert.Equal(t, 3*3+0, ev.Column(4, 0))
}

// The sparsity pattern of each row is exactly the equation's reads that land
// on free periods.
func TestEvaluator_SparsityFollowsReads(t *testing.T) {
	m := nkModel(t, ModeMCP)
	ev, err := NewEvaluator(m, 6, 1)
	require.NoError(t, err)
	p, err := NewPath(m, 6, nil, nil)
	require.NoError(t, err)

	_, J, err := ev.Evaluate(p)
	require.NoError(t, err)

	pi, y, i := 0, 1, 2
	// phillips at t=2: pi(2), y(2), pi(3)
	assert.Equal(t, []int{ev.Column(2, pi), ev.Column(2, y), ev.Column(3, pi)}, J.RowPattern(ev.Row(2, 0)))
	// is at t=4 (last free period): leads fall on the terminal period
	assert.Equal(t, []int{ev.Column(4, y), ev.Column(4, i)}, J.RowPattern(ev.Row(4, 1)))
	// taylor at t=1
	assert.Equal(t, []int{ev.Column(1, pi), ev.Column(1, y), ev.Column(1, i)}, J.RowPattern(ev.Row(1, 2)))

	// 4 free periods: phillips 3,3,3,2; is 4,4,4,2; taylor 3 each
	assert.Equal(t, 11+14+12, J.NNZ())
}

func TestEvaluator_ResidualAtSteadyState(t *testing.T) {
	m := nkModel(t, ModeMCP)
	ev, err := NewEvaluator(m, 8, 1)
	require.NoError(t, err)
	p, err := NewPath(m, 8, nil, nil)
	require.NoError(t, err)

	F, err := ev.Residuals(p)
	require.NoError(t, err)
	for r, f := range F {
		assert.Zero(t, f, "row %d", r)
	}

	require.NoError(t, p.ApplyShock("e", 3, -0.01))
	F, err = ev.Residuals(p)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, F[ev.Row(3, 1)], 1e-15)
}

func TestEvaluator_JacobianMatchesFiniteDifferences(t *testing.T) {
	m := nkModel(t, ModeMCP)
	ev, err := NewEvaluator(m, 8, 1)
	require.NoError(t, err)
	p, err := NewPath(m, 8, nil, nil)
	require.NoError(t, err)
	for tt := 1; tt < 7; tt++ {
		for k := 0; k < 3; k++ {
			p.Set(tt, k, 0.001*float64(tt*(k+1)))
		}
	}

	gap, err := ev.CheckJacobian(p)
	require.NoError(t, err)
	if gap > 1e-6 {
		t.Errorf("CheckJacobian gap = %g, want <= 1e-6", gap)
	}
}

// A nil Gradient falls back to central differences.
func TestEvaluator_FiniteDifferenceFallback(t *testing.T) {
	b := NewBuilder(ModeNewton)
	require.NoError(t, b.Endogenous("x", ""))
	require.NoError(t, b.Equation(Equation{
		Name:     "cubic",
		Reads:    []Ref{Cur("x"), Lag("x")},
		Residual: func(x []float64) float64 { return x[0]*x[0]*x[0] - 0.5*x[1] },
	}))
	m, err := b.Build()
	require.NoError(t, err)

	p, err := NewPath(m, 5, nil, nil)
	require.NoError(t, err)
	p.Set(1, 0, 2)
	ev, err := NewEvaluator(m, 5, 1)
	require.NoError(t, err)

	_, J, err := ev.Evaluate(p)
	require.NoError(t, err)
	assert.InDelta(t, 12, J.At(0, 0), 1e-6)
	assert.InDelta(t, -0.5, J.At(1, 0), 1e-9)
}

func TestEvaluator_ParallelMatchesSerial(t *testing.T) {
	m := nkModel(t, ModeMCP)
	p, err := NewPath(m, 40, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.ApplyShock("e", 1, -0.01))
	for tt := 1; tt < 39; tt++ {
		p.Set(tt, 1, -0.001*float64(tt%5))
	}

	serial, err := NewEvaluator(m, 40, 1)
	require.NoError(t, err)
	parallel, err := NewEvaluator(m, 40, 4)
	require.NoError(t, err)

	F1, J1, err := serial.Evaluate(p)
	require.NoError(t, err)
	F2, J2, err := parallel.Evaluate(p)
	require.NoError(t, err)

	assert.Equal(t, F1.RawVector().Data, F2.RawVector().Data)
	assert.Equal(t, J1.Dense().RawMatrix().Data, J2.Dense().RawMatrix().Data)
}

func TestEvaluator_NonFinite(t *testing.T) {
	b := NewBuilder(ModeNewton)
	require.NoError(t, b.Endogenous("x", ""))
	require.NoError(t, b.EquationExpr("law", "log(x) = 0"))
	m, err := b.Build()
	require.NoError(t, err)

	p, err := NewPath(m, 4, nil, nil)
	require.NoError(t, err)
	ev, err := NewEvaluator(m, 4, 1)
	require.NoError(t, err)
	_, _, err = ev.Evaluate(p)
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestEvaluator_PathHorizonMismatch(t *testing.T) {
	m := forwardModel(t)
	p, err := NewPath(m, 5, nil, nil)
	require.NoError(t, err)
	ev, err := NewEvaluator(m, 6, 1)
	require.NoError(t, err)
	_, err = ev.Residuals(p)
	assert.Error(t, err)
}
