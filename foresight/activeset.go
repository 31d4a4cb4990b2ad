package foresight

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

type bindState int8

const (
	inactive bindState = iota
	atLower
	atUpper
)

// pair is one complementarity-tagged equation row at one period, matched
// with the stacked column of the variable it constrains.
type pair struct {
	row, col int
	bounds   Bounds
}

// activeSet tracks which tagged variables are clamped at a bound during an
// MCP solve.
type activeSet struct {
	pairs  []pair
	state  []bindState
	tagged map[int]int // stacked row -> pair index
	seen   map[string]int
	flips  int
}

func newActiveSet(ev *Evaluator, m *Model) *activeSet {
	a := &activeSet{
		tagged: make(map[int]int),
		seen:   make(map[string]int),
	}
	for _, tag := range m.cons.Tags() {
		eq, _ := m.reg.Index(tag.Equation)
		k, _ := m.VarIndex(tag.Variable)
		for t := 1; t <= ev.nFree; t++ {
			p := pair{row: ev.Row(t, eq), col: ev.Column(t, k), bounds: tag.Bounds}
			a.tagged[p.row] = len(a.pairs)
			a.pairs = append(a.pairs, p)
		}
	}
	a.state = make([]bindState, len(a.pairs))
	return a
}

// update releases clamped variables whose residual now has the wrong sign for
// their bound, then clamps free variables that left their bounds (writing the
// bound into x). It returns the number of state changes.
func (a *activeSet) update(x, F []float64, signTol float64) int {
	flips := 0
	for i, p := range a.pairs {
		switch a.state[i] {
		case atLower:
			if F[p.row] < -signTol {
				a.state[i] = inactive
				flips++
			} else {
				x[p.col] = p.bounds.Lower
			}
		case atUpper:
			if F[p.row] > signTol {
				a.state[i] = inactive
				flips++
			} else {
				x[p.col] = p.bounds.Upper
			}
		case inactive:
			// sitting exactly on a bound with the residual pushing outward
			// counts as leaving it
			if x[p.col] < p.bounds.Lower || (x[p.col] == p.bounds.Lower && F[p.row] > signTol) {
				x[p.col] = p.bounds.Lower
				a.state[i] = atLower
				flips++
			} else if x[p.col] > p.bounds.Upper || (x[p.col] == p.bounds.Upper && F[p.row] < -signTol) {
				x[p.col] = p.bounds.Upper
				a.state[i] = atUpper
				flips++
			}
		}
	}
	a.flips += flips
	return flips
}

// visit records the current signature and reports whether it has now been
// reached more than twice, i.e. the loop is cycling.
func (a *activeSet) visit() bool {
	sig := a.signature()
	a.seen[sig]++
	return a.seen[sig] > 2
}

func (a *activeSet) signature() string {
	b := make([]byte, len(a.state))
	for i, s := range a.state {
		b[i] = byte('0' + s)
	}
	return string(b)
}

func (a *activeSet) active() int {
	n := 0
	for _, s := range a.state {
		if s != inactive {
			n++
		}
	}
	return n
}

// merit is the infinity norm of the MCP residual: equality residuals for
// plain and interior rows, bound violations for free tagged variables, and
// distance to the bound plus complementarity sign violations for clamped ones.
func (a *activeSet) merit(x, F []float64) float64 {
	m := 0.0
	for r, f := range F {
		i, ok := a.tagged[r]
		if !ok {
			m = math.Max(m, math.Abs(f))
			continue
		}
		p := a.pairs[i]
		switch a.state[i] {
		case inactive:
			m = math.Max(m, math.Abs(f))
			m = math.Max(m, p.bounds.Lower-x[p.col])
			m = math.Max(m, x[p.col]-p.bounds.Upper)
		case atLower:
			m = math.Max(m, math.Abs(x[p.col]-p.bounds.Lower))
			m = math.Max(m, -f)
		case atUpper:
			m = math.Max(m, math.Abs(x[p.col]-p.bounds.Upper))
			m = math.Max(m, f)
		}
	}
	return m
}

// pin replaces the Newton rows of clamped pairs by x_j - bound = 0.
func (a *activeSet) pin(A *mat.Dense, b []float64, x []float64) {
	_, n := A.Dims()
	zero := make([]float64, n)
	for i, p := range a.pairs {
		var bound float64
		switch a.state[i] {
		case atLower:
			bound = p.bounds.Lower
		case atUpper:
			bound = p.bounds.Upper
		default:
			continue
		}
		A.SetRow(p.row, zero)
		A.Set(p.row, p.col, 1)
		b[p.row] = -(x[p.col] - bound)
	}
}
