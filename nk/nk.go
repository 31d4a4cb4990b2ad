// Package nk is the three-equation New Keynesian model with an effective
// lower bound on the nominal interest rate.
package nk

import (
	_ "embed"
	"math"

	"ELB_Perfect_Foresight/application/foresight"
)

//go:embed nk_elb.yaml
var definition []byte

// Definition returns the YAML form of the model.
func Definition() []byte { return append([]byte(nil), definition...) }

// Load builds the YAML form. An empty mode keeps the file's mode.
func Load(mode string) (*foresight.Definition, error) {
	return foresight.ParseModel(definition, mode)
}

type Params struct {
	Beta  float64 // discount factor
	Sigma float64 // inverse elasticity of intertemporal substitution
	Kappa float64 // Phillips curve slope
	PhiPi float64 // rule response to inflation
	PhiY  float64 // rule response to the output gap
	Rho   float64 // interest rate smoothing
	RLB   float64 // floor on the nominal rate (deviation from steady state)
}

func DefaultParams() Params {
	return Params{
		Beta:  0.99,
		Sigma: 2.0,
		Kappa: 0.3,
		PhiPi: 1.5,
		PhiY:  1.0,
		Rho:   0.0,
		RLB:   -0.0055,
	}
}

// Build declares the model with analytic gradients. In MCP mode the Taylor
// rule is tagged with i >= RLB; in Newton mode the rule is wrapped in
// max(RLB, .). Set p.RLB to -Inf for an unconstrained rule.
func Build(mode foresight.Mode, p Params) (*foresight.Model, error) {
	b := foresight.NewBuilder(mode)

	for _, v := range []struct{ name, label string }{
		{"pi", "Inflation"},
		{"y", "Output gap"},
		{"i", "Nominal interest rate"},
	} {
		if err := b.Endogenous(v.name, v.label); err != nil {
			return nil, err
		}
	}
	if err := b.Exogenous("e", "Demand shock"); err != nil {
		return nil, err
	}

	// pi = beta*pi(+1) + kappa*y
	phillips := foresight.Equation{
		Name:  "phillips",
		Reads: []foresight.Ref{foresight.Cur("pi"), foresight.Lead("pi"), foresight.Cur("y")},
		Residual: func(x []float64) float64 {
			return x[0] - p.Beta*x[1] - p.Kappa*x[2]
		},
		Gradient: func(_, g []float64) {
			g[0], g[1], g[2] = 1, -p.Beta, -p.Kappa
		},
	}

	// y = y(+1) - (i - pi(+1))/sigma + e
	is := foresight.Equation{
		Name: "is",
		Reads: []foresight.Ref{
			foresight.Cur("y"), foresight.Lead("y"), foresight.Cur("i"), foresight.Lead("pi"), foresight.Cur("e"),
		},
		Residual: func(x []float64) float64 {
			return x[0] - x[1] + (x[2]-x[3])/p.Sigma - x[4]
		},
		Gradient: func(_, g []float64) {
			g[0], g[1], g[2], g[3], g[4] = 1, -1, 1/p.Sigma, -1/p.Sigma, -1
		},
	}

	taylor := taylorRule(mode, p)

	for _, eq := range []foresight.Equation{phillips, is, taylor} {
		if err := b.Equation(eq); err != nil {
			return nil, err
		}
	}

	if !math.IsInf(p.RLB, -1) {
		var err error
		if mode == foresight.ModeMCP {
			err = b.Complementary("taylor", "i", foresight.LowerBound(p.RLB))
		} else {
			err = b.Smooth("taylor", "i")
		}
		if err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// i = rho*i(-1) + (1-rho)*(phi_pi*pi + phi_y*y), floored at RLB in newton mode
func taylorRule(mode foresight.Mode, p Params) foresight.Equation {
	rule := func(x []float64) float64 {
		return p.Rho*x[1] + (1-p.Rho)*(p.PhiPi*x[2]+p.PhiY*x[3])
	}
	ruleGrad := func(g []float64) {
		g[0], g[1], g[2], g[3] = 1, -p.Rho, -(1-p.Rho)*p.PhiPi, -(1-p.Rho)*p.PhiY
	}
	eq := foresight.Equation{
		Name:  "taylor",
		Reads: []foresight.Ref{foresight.Cur("i"), foresight.Lag("i"), foresight.Cur("pi"), foresight.Cur("y")},
		Residual: func(x []float64) float64 {
			return x[0] - rule(x)
		},
		Gradient: func(_, g []float64) { ruleGrad(g) },
	}
	if mode == foresight.ModeNewton && !math.IsInf(p.RLB, -1) {
		eq.Residual = func(x []float64) float64 {
			return x[0] - math.Max(p.RLB, rule(x))
		}
		eq.Gradient = func(x, g []float64) {
			if rule(x) >= p.RLB {
				ruleGrad(g)
				return
			}
			g[0] = 1
		}
	}
	return eq
}

// Scenario is a one-period demand shock of size shock at period 1, starting
// and ending at the steady state.
func Scenario(horizon int, shock float64) foresight.SimulationRequest {
	return foresight.SimulationRequest{
		Horizon: horizon,
		Shocks:  []foresight.Shock{{Variable: "e", Period: 1, Value: shock}},
	}
}
