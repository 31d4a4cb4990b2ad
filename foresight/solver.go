package foresight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var tracer = otel.Tracer("ELB_Perfect_Foresight/foresight")

// Solver drives Newton or active-set (MCP) iterations over the whole stacked
// time-path system. The mode comes from the model. A Solver holds no
// per-solve state, so one Solver may solve independent paths concurrently.
type Solver struct {
	model   *Model
	opts    Options
	logger  *slog.Logger
	metrics *Metrics
}

// NewSolver returns a solver for m. A nil logger uses slog.Default().
func NewSolver(m *Model, opts Options, logger *slog.Logger) *Solver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Solver{
		model:  m,
		opts:   opts.withDefaults(),
		logger: logger.With("mode", m.Mode().String()),
	}
}

// WithMetrics records solve outcomes in mt.
func (s *Solver) WithMetrics(mt *Metrics) *Solver {
	s.metrics = mt
	return s
}

func (s *Solver) Options() Options { return s.opts }

// Simulate builds a path from req, applies its shocks in order and solves it.
// On failure no path is returned.
func (s *Solver) Simulate(ctx context.Context, req SimulationRequest) (*Path, *Report, error) {
	p, err := NewPath(s.model, req.Horizon, req.Initial, req.Terminal)
	if err != nil {
		return nil, nil, err
	}
	for _, sh := range req.Shocks {
		if err := p.ApplyShock(sh.Variable, sh.Period, sh.Value); err != nil {
			return nil, nil, err
		}
	}
	rep, err := s.Solve(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if !p.IsTerminalAnchored(0) {
		return nil, nil, errorf(ErrInvalidModel, "terminal period moved during solve")
	}
	return p, rep, nil
}

// Simulate is a shorthand for NewSolver(m, opts, logger).Simulate(ctx, req).
func Simulate(ctx context.Context, m *Model, req SimulationRequest, opts Options, logger *slog.Logger) (*Path, *Report, error) {
	return NewSolver(m, opts, logger).Simulate(ctx, req)
}

// Solve iterates on the free entries of p in place until the residual (MCP
// merit in MCP mode) drops below the tolerance with a stable active set. On a
// *DivergedError the contents of p are unspecified.
func (s *Solver) Solve(ctx context.Context, p *Path) (rep *Report, err error) {
	mode := s.model.Mode()
	ctx, span := tracer.Start(ctx, "foresight.Solve", trace.WithAttributes(
		attribute.String("mode", mode.String()),
		attribute.Int("horizon", p.Horizon()),
	))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("iterations", rep.Iterations))
		}
		span.End()
		s.metrics.observe(mode, rep, err, time.Since(start))
	}()

	if p.model != s.model {
		return nil, errorf(ErrInvalidModel, "path belongs to a different model")
	}
	ev, err := NewEvaluator(s.model, p.Horizon(), s.opts.Workers)
	if err != nil {
		return nil, err
	}

	var as *activeSet
	if mode == ModeMCP && s.model.cons.Len() > 0 {
		as = newActiveSet(ev, s.model)
	}

	x := ev.FreeVector(p)
	norm := math.Inf(1)
	steps := 0
	diverged := func(reason error) error {
		s.logger.Warn("solve diverged", "iterations", steps, "residual", norm, "reason", reason)
		return &DivergedError{Mode: mode, Iterations: steps, ResidualNorm: norm, Reason: reason}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, diverged(err)
		}

		F, J, err := ev.Evaluate(p)
		if err != nil {
			if errors.Is(err, ErrNonFinite) {
				return nil, diverged(err)
			}
			return nil, err
		}
		f := F.RawVector().Data

		flips := 0
		if as != nil {
			flips = as.update(x, f, s.opts.SignTolerance)
			// clamped entries are written back exactly on their bounds
			ev.SetFree(p, x)
			if flips > 0 {
				if as.visit() {
					return nil, diverged(fmt.Errorf("%w: active-set signature repeated", ErrCycling))
				}
				if F, J, err = ev.Evaluate(p); err != nil {
					if errors.Is(err, ErrNonFinite) {
						return nil, diverged(err)
					}
					return nil, err
				}
				f = F.RawVector().Data
			}
			norm = as.merit(x, f)
		} else {
			norm = floats.Norm(f, math.Inf(1))
		}

		s.logger.Debug("iteration", "step", steps, "residual", norm, "flips", flips)

		if norm < s.opts.Tolerance && flips == 0 {
			rep = &Report{Mode: mode, Iterations: steps, ResidualNorm: norm}
			if as != nil {
				rep.Active = as.active()
				rep.Flips = as.flips
			}
			s.logger.Info("solve converged", "iterations", steps, "residual", norm, "active", rep.Active)
			return rep, nil
		}
		if steps >= s.opts.MaxIter {
			return nil, diverged(ErrMaxIter)
		}

		// J dx = -F, with clamped rows replaced by x_j - bound = 0
		A := J.Dense()
		b := make([]float64, len(f))
		floats.ScaleTo(b, -1, f)
		if as != nil {
			as.pin(A, b, x)
		}
		dx, err := solveLinear(A, b)
		if err != nil {
			return nil, diverged(err)
		}
		floats.Add(x, dx)
		ev.SetFree(p, x)
		steps++
	}
}

// solveLinear solves A x = b with a partially pivoted LU factorization.
// Singular and near-singular systems are reported as ErrSingularJacobian.
func solveLinear(A *mat.Dense, b []float64) ([]float64, error) {
	var lu mat.LU
	lu.Factorize(A)

	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, mat.NewVecDense(len(b), b)); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("%w (condition number %g)", ErrSingularJacobian, float64(cond))
		}
		return nil, fmt.Errorf("%w: %v", ErrSingularJacobian, err)
	}
	out := make([]float64, len(b))
	copy(out, x.RawVector().Data)
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite Newton step", ErrSingularJacobian)
		}
	}
	return out, nil
}
