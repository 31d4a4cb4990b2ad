package foresight

import (
	"math"
	"strings"
)

// Role says whether a variable is solved for or fixed from outside.
type Role int

const (
	Endogenous Role = iota
	Exogenous
)

func (r Role) String() string {
	switch r {
	case Endogenous:
		return "endogenous"
	case Exogenous:
		return "exogenous"
	}
	return "unknown"
}

type Variable struct {
	Name string
	Role Role
	// Optional long-form label, e.g. "Nominal interest rate"
	Label string
}

type Parameter struct {
	Name  string
	Value float64
}

// Ref is a read of one variable at a time offset relative to the equation's period.
// Offset -1 is a lag, 0 is the current period, +1 is a lead.
type Ref struct {
	Var    string
	Offset int
}

// Lag, Cur and Lead build refs for the three usual offsets.
func Lag(name string) Ref  { return Ref{Var: name, Offset: -1} }
func Cur(name string) Ref  { return Ref{Var: name, Offset: 0} }
func Lead(name string) Ref { return Ref{Var: name, Offset: 1} }

// ResidualFunc receives the values of an equation's reads in declaration order.
type ResidualFunc func(x []float64) float64

// GradientFunc writes the partial derivatives of the residual with respect to
// each read into grad (same order and length as x).
type GradientFunc func(x []float64, grad []float64)

type Equation struct {
	Name  string
	Reads []Ref
	// Residual is zero when the equation holds
	Residual ResidualFunc
	// Gradient is optional; nil means finite differences
	Gradient GradientFunc
}

// Mode selects how occasionally binding bounds are handled. It is fixed when
// the model is built.
type Mode int

const (
	// ModeNewton treats every equation as an equality. Bounds, if any, live
	// inside residuals as max/min reformulations.
	ModeNewton Mode = iota
	// ModeMCP honours complementarity tags with an active-set loop.
	ModeMCP
)

func (m Mode) String() string {
	switch m {
	case ModeNewton:
		return "newton"
	case ModeMCP:
		return "mcp"
	}
	return "unknown"
}

// ParseMode accepts "newton" or "mcp" (any case).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "newton":
		return ModeNewton, nil
	case "mcp":
		return ModeMCP, nil
	}
	return 0, errorf(ErrInvalidModel, "unknown mode %q (want newton or mcp)", s)
}

// Bounds on a complementarity-tagged variable. Use math.Inf for a missing side.
type Bounds struct {
	Lower float64
	Upper float64
}

// LowerBound returns bounds with only a floor.
func LowerBound(lb float64) Bounds { return Bounds{Lower: lb, Upper: math.Inf(1)} }

// UpperBound returns bounds with only a ceiling.
func UpperBound(ub float64) Bounds { return Bounds{Lower: math.Inf(-1), Upper: ub} }

func (b Bounds) HasLower() bool { return !math.IsInf(b.Lower, -1) }
func (b Bounds) HasUpper() bool { return !math.IsInf(b.Upper, 1) }

// Complementarity ties an equation row to the variable it constrains.
type Complementarity struct {
	Equation string
	Variable string
	Bounds   Bounds
}

// Shock overrides one exogenous entry of a path before solving.
type Shock struct {
	Variable string
	Period   int
	Value    float64
}

// Options are the solver's stopping rules and evaluation settings. They are
// passed explicitly to every solve.
type Options struct {
	// Absolute tolerance on the infinity norm of the residual (MCP merit)
	Tolerance float64
	// Maximum number of Newton steps
	MaxIter int
	// Goroutines used for residual/Jacobian evaluation; <= 1 evaluates serially
	Workers int
	// A clamped variable is released only when its residual has the wrong
	// sign by more than this amount
	SignTolerance float64
}

// DefaultOptions returns tolerance 1e-10 and at most 100 iterations.
func DefaultOptions() Options {
	return Options{
		Tolerance:     1e-10,
		MaxIter:       100,
		Workers:       1,
		SignTolerance: 1e-12,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	if o.SignTolerance <= 0 {
		o.SignTolerance = d.SignTolerance
	}
	return o
}

// SimulationRequest is everything needed for one perfect-foresight run.
type SimulationRequest struct {
	Horizon  int
	Initial  map[string]float64
	Terminal map[string]float64
	Shocks   []Shock
}

// Report summarises a converged solve.
type Report struct {
	Mode         Mode
	Iterations   int     // Newton steps taken
	ResidualNorm float64 // final infinity norm (MCP merit in MCP mode)
	Active       int     // complementarity pairs clamped at a bound
	Flips        int     // total active-set changes
}
