package foresight

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// helper: compare floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// arModel: x = 0.5*x(-1) + e, optionally with x >= floor.
// In newton mode the floor is written as max(floor, .).
func arModel(t *testing.T, mode Mode, floor float64) *Model {
	t.Helper()
	b := NewBuilder(mode)
	require.NoError(t, b.Endogenous("x", ""))
	require.NoError(t, b.Exogenous("e", ""))
	require.NoError(t, b.Parameter("floor", floor))

	bounded := !math.IsInf(floor, -1)
	src := "x = 0.5*x(-1) + e"
	if bounded && mode == ModeNewton {
		src = "x = max(floor, 0.5*x(-1) + e)"
	}
	require.NoError(t, b.EquationExpr("law", src))
	if bounded {
		if mode == ModeMCP {
			require.NoError(t, b.Complementary("law", "x", LowerBound(floor)))
		} else {
			require.NoError(t, b.Smooth("law", "x"))
		}
	}
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

// forwardModel: x = 0.5*x(+1) + e
func forwardModel(t *testing.T) *Model {
	t.Helper()
	b := NewBuilder(ModeNewton)
	require.NoError(t, b.Endogenous("x", ""))
	require.NoError(t, b.Exogenous("e", ""))
	require.NoError(t, b.EquationExpr("law", "x = 0.5*x(+1) + e"))
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

// nkModel is the three-equation New Keynesian model with a floor on i.
func nkModel(t *testing.T, mode Mode) *Model {
	t.Helper()
	b := NewBuilder(mode)
	for _, v := range []string{"pi", "y", "i"} {
		require.NoError(t, b.Endogenous(v, ""))
	}
	require.NoError(t, b.Exogenous("e", ""))
	for k, v := range map[string]float64{
		"beta": 0.99, "sigma": 2, "kappa": 0.3, "phi_pi": 1.5, "phi_y": 1.0, "rlb": -0.0055,
	} {
		require.NoError(t, b.Parameter(k, v))
	}
	require.NoError(t, b.EquationExpr("phillips", "pi = beta*pi(+1) + kappa*y"))
	require.NoError(t, b.EquationExpr("is", "y = y(+1) - (i - pi(+1))/sigma + e"))
	if mode == ModeMCP {
		require.NoError(t, b.EquationExpr("taylor", "i = phi_pi*pi + phi_y*y"))
		require.NoError(t, b.Complementary("taylor", "i", LowerBound(-0.0055)))
	} else {
		require.NoError(t, b.EquationExpr("taylor", "i = max(rlb, phi_pi*pi + phi_y*y)"))
		require.NoError(t, b.Smooth("taylor", "i"))
	}
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func shockAt(horizon, period int, value float64) SimulationRequest {
	return SimulationRequest{
		Horizon: horizon,
		Shocks:  []Shock{{Variable: "e", Period: period, Value: value}},
	}
}
