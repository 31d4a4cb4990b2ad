package foresight

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPath_WarmStartAndBoundaries(t *testing.T) {
	m := forwardModel(t)
	p, err := NewPath(m, 6, map[string]float64{"x": 2}, map[string]float64{"x": 1})
	require.NoError(t, err)

	xs, err := p.Series("x")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 1, 1, 1, 1}, xs)
	assert.True(t, p.IsTerminalAnchored(0))
	assert.Equal(t, []float64{2, 0}, p.Initial())
	assert.Equal(t, []float64{1, 0}, p.Terminal())
}

func TestNewPath_Rejects(t *testing.T) {
	m := forwardModel(t)

	_, err := NewPath(m, 2, nil, nil)
	assert.ErrorIs(t, err, ErrBoundaryReference)

	_, err = NewPath(m, 5, map[string]float64{"ghost": 1}, nil)
	assert.ErrorIs(t, err, ErrUnknownVariable)

	_, err = NewPath(m, 5, nil, map[string]float64{"x": math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestApplyShock(t *testing.T) {
	m := forwardModel(t)
	p, err := NewPath(m, 5, nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.ApplyShock("e", 2, 1))
	require.NoError(t, p.ApplyShock("e", 2, -3)) // later call wins
	v, err := p.Value("e", 2)
	require.NoError(t, err)
	assert.Equal(t, -3.0, v)

	assert.ErrorIs(t, p.ApplyShock("e", 5, 1), ErrBoundaryReference)
	assert.ErrorIs(t, p.ApplyShock("e", -1, 1), ErrBoundaryReference)
	assert.ErrorIs(t, p.ApplyShock("ghost", 1, 1), ErrUnknownVariable)
	assert.ErrorIs(t, p.ApplyShock("x", 1, 1), ErrInvalidModel)
}

func TestPath_CloneIsIndependent(t *testing.T) {
	m := forwardModel(t)
	p, err := NewPath(m, 4, nil, nil)
	require.NoError(t, err)

	c := p.Clone()
	c.Set(1, 0, 7)
	assert.Equal(t, 0.0, p.At(1, 0))
	assert.Equal(t, 7.0, MaxAbsDiff(p, c))
}

func TestPath_Deviations(t *testing.T) {
	m := forwardModel(t)
	p, err := NewPath(m, 4, map[string]float64{"x": 3}, map[string]float64{"x": 1})
	require.NoError(t, err)
	p.Set(2, 0, 1.5)

	dev := p.Deviations()
	if !almostEqual(dev.At(0, 0), 2, 1e-15) || !almostEqual(dev.At(2, 0), 0.5, 1e-15) || dev.At(3, 0) != 0 {
		t.Errorf("Deviations column = %v", []float64{dev.At(0, 0), dev.At(1, 0), dev.At(2, 0), dev.At(3, 0)})
	}
}
