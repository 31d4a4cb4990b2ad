package nk

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ELB_Perfect_Foresight/application/foresight"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func simulate(t *testing.T, mode foresight.Mode, p Params, req foresight.SimulationRequest) (*foresight.Path, *foresight.Report) {
	t.Helper()
	m, err := Build(mode, p)
	require.NoError(t, err)
	path, rep, err := foresight.Simulate(context.Background(), m, req, foresight.DefaultOptions(), quiet)
	require.NoError(t, err)
	return path, rep
}

// persistent demand shock e_k = -0.01 * 0.8^(k-1) for k = 1..7
func persistentShock(horizon int) foresight.SimulationRequest {
	req := foresight.SimulationRequest{Horizon: horizon}
	for k := 1; k <= 7; k++ {
		req.Shocks = append(req.Shocks, foresight.Shock{Variable: "e", Period: k, Value: -0.01 * math.Pow(0.8, float64(k-1))})
	}
	return req
}

func TestELB_MCPRespectsFloor(t *testing.T) {
	params := DefaultParams()
	path, rep := simulate(t, foresight.ModeMCP, params, Scenario(100, -0.01))

	rates, err := path.Series("i")
	require.NoError(t, err)
	low := math.Inf(1)
	for _, r := range rates {
		low = math.Min(low, r)
	}
	assert.GreaterOrEqual(t, low, params.RLB-1e-12)
	assert.InDelta(t, params.RLB, low, 1e-12, "the floor should bind")
	assert.Equal(t, 1, rep.Active)

	// back at the steady state well before the end
	for _, v := range []string{"pi", "y", "i"} {
		x, err := path.Value(v, 98)
		require.NoError(t, err)
		assert.InDelta(t, 0, x, 1e-8, v)
	}
	assert.True(t, path.IsTerminalAnchored(0))
}

func TestELB_NewtonMatchesMCP(t *testing.T) {
	params := DefaultParams()
	pn, repN := simulate(t, foresight.ModeNewton, params, Scenario(100, -0.01))
	pm, repM := simulate(t, foresight.ModeMCP, params, Scenario(100, -0.01))

	assert.Less(t, foresight.MaxAbsDiff(pn, pm), 1e-8)
	assert.LessOrEqual(t, repN.Iterations, 10)
	assert.LessOrEqual(t, repM.Iterations, 10)

	y, err := pm.Value("y", 1)
	require.NoError(t, err)
	assert.InDelta(t, -0.00725, y, 1e-12)
}

func TestELB_PersistentShock(t *testing.T) {
	params := DefaultParams()
	pn, _ := simulate(t, foresight.ModeNewton, params, persistentShock(40))
	pm, rep := simulate(t, foresight.ModeMCP, params, persistentShock(40))

	assert.Equal(t, 5, rep.Active)
	assert.Less(t, foresight.MaxAbsDiff(pn, pm), 1e-8)

	for tt := 1; tt <= 5; tt++ {
		i, _ := pm.Value("i", tt)
		assert.InDelta(t, params.RLB, i, 1e-12, "period %d", tt)
	}
	i6, _ := pm.Value("i", 6)
	assert.Greater(t, i6, params.RLB)
}

func TestELB_InterestSmoothing(t *testing.T) {
	params := DefaultParams()
	params.Rho = 0.5
	pn, _ := simulate(t, foresight.ModeNewton, params, persistentShock(40))
	pm, rep := simulate(t, foresight.ModeMCP, params, persistentShock(40))

	assert.Greater(t, rep.Active, 0)
	assert.Less(t, foresight.MaxAbsDiff(pn, pm), 1e-8)
}

func TestELB_NoFloor(t *testing.T) {
	params := DefaultParams()
	params.RLB = math.Inf(-1)
	path, rep := simulate(t, foresight.ModeMCP, params, Scenario(30, -0.01))

	assert.Equal(t, 0, rep.Active)
	assert.Equal(t, 1, rep.Iterations)
	i, _ := path.Value("i", 1)
	assert.Less(t, i, DefaultParams().RLB)
}

// The YAML definition and the hand-written closures describe the same model.
func TestLoad_MatchesBuild(t *testing.T) {
	for _, mode := range []foresight.Mode{foresight.ModeNewton, foresight.ModeMCP} {
		def, err := Load(mode.String())
		require.NoError(t, err)
		assert.Equal(t, "nk_elb", def.Name)
		assert.Equal(t, mode, def.Model.Mode())
		assert.Equal(t, 100, def.Request.Horizon)

		fromFile, _, err := foresight.Simulate(context.Background(), def.Model, def.Request, def.Options, quiet)
		require.NoError(t, err)
		fromCode, _ := simulate(t, mode, DefaultParams(), Scenario(100, -0.01))
		assert.Less(t, foresight.MaxAbsDiff(fromFile, fromCode), 1e-12, mode.String())
	}
}

func TestBuild_JacobianCheck(t *testing.T) {
	m, err := Build(foresight.ModeMCP, DefaultParams())
	require.NoError(t, err)
	p, err := foresight.NewPath(m, 12, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.ApplyShock("e", 1, -0.01))
	for tt := 1; tt < 11; tt++ {
		p.Set(tt, 0, -0.001*float64(tt))
		p.Set(tt, 1, 0.002*float64(tt%3))
		p.Set(tt, 2, 0.0005*float64(tt))
	}

	ev, err := foresight.NewEvaluator(m, 12, 1)
	require.NoError(t, err)
	gap, err := ev.CheckJacobian(p)
	require.NoError(t, err)
	assert.Less(t, gap, 1e-6)
}

func TestDefinition(t *testing.T) {
	assert.Contains(t, string(Definition()), "name: nk_elb")
}
