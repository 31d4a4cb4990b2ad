package foresight

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

func exprSymbols(t *testing.T) *Builder {
	t.Helper()
	b := NewBuilder(ModeNewton)
	for _, v := range []string{"c", "k", "z"} {
		require.NoError(t, b.Endogenous(v, ""))
	}
	require.NoError(t, b.Parameter("alpha", 0.3))
	require.NoError(t, b.Parameter("delta", 0.1))
	return b
}

func TestCompileEquation_ReadsAndResidual(t *testing.T) {
	b := exprSymbols(t)
	eq, err := CompileEquation("euler", "k = (1 - delta)*k(-1) + exp(z)*pow(k(-1), alpha) - c", b)
	require.NoError(t, err)

	assert.Equal(t, "euler", eq.Name)
	assert.Equal(t, []Ref{Cur("k"), Lag("k"), Cur("z"), Cur("c")}, eq.Reads)

	x := []float64{2.0, 1.8, 0.1, 0.5}
	want := 2.0 - (0.9*1.8 + math.Exp(0.1)*math.Pow(1.8, 0.3) - 0.5)
	got := eq.Residual(x)
	if !almostEqual(got, want, 1e-14) {
		t.Errorf("Residual = %v, want %v", got, want)
	}
}

// Analytic gradients agree with central differences away from kinks.
func TestCompileEquation_GradientMatchesFiniteDifferences(t *testing.T) {
	b := exprSymbols(t)
	cases := []string{
		"k = (1 - delta)*k(-1) + exp(z)*pow(k(-1), alpha) - c",
		"log(c) - log(c(+1)) + sqrt(k)/k(+1) = 0",
		"c*k/z - abs(z - 1) + pow(2, z)",
		"-c + +k - z",
		"c = min(k, z) + max(alpha, c(-1))",
	}
	x0 := []float64{1.3, 0.7, 2.1, 0.4, 1.1}
	for _, src := range cases {
		eq, err := CompileEquation("e", src, b)
		require.NoError(t, err, src)
		x := x0[:len(eq.Reads)]

		got := make([]float64, len(x))
		eq.Gradient(x, got)
		want := fd.Gradient(nil, eq.Residual, x, &fd.Settings{Formula: fd.Central})
		for i := range got {
			assert.InDelta(t, want[i], got[i], 1e-6, "%s d/d%v", src, eq.Reads[i])
		}
	}
}

// max/min select the gradient of the winning branch.
func TestCompileEquation_KinkBranch(t *testing.T) {
	b := exprSymbols(t)
	eq, err := CompileEquation("taylor", "k = max(-0.0055, 1.5*z + c)", b)
	require.NoError(t, err)
	require.Equal(t, []Ref{Cur("k"), Cur("z"), Cur("c")}, eq.Reads)

	g := make([]float64, 3)
	eq.Gradient([]float64{0, -0.01, 0}, g) // floor binds
	assert.Equal(t, []float64{1, 0, 0}, g)

	eq.Gradient([]float64{0, 0.01, 0}, g) // rule binds
	assert.Equal(t, []float64{1, -1.5, -1}, g)
	assert.InDelta(t, -0.015, eq.Residual([]float64{0, 0.01, 0}), 1e-15)
}

func TestCompileEquation_Errors(t *testing.T) {
	b := exprSymbols(t)
	for _, src := range []string{
		"",
		"k = ",
		"k = c = z",
		"k > c",
		"k = ghost",
		"k = c(x)",
		"k = c(1.5)",
		"k = c % z",
		"k = sin(c)",
		"k = pow(c)",
		"k = \"c\"",
		"alpha = delta",
		"k = c +",
	} {
		_, err := CompileEquation("bad", src, b)
		assert.ErrorIs(t, err, ErrInvalidModel, "%q", src)
	}
}

func TestResidualSource(t *testing.T) {
	s, err := residualSource("a = b + c")
	require.NoError(t, err)
	assert.Equal(t, "(a) - (b + c)", s)

	s, err = residualSource("  a - b ")
	require.NoError(t, err)
	assert.Equal(t, "a - b", s)
}
