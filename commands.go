package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"ELB_Perfect_Foresight/application/foresight"
	"ELB_Perfect_Foresight/application/nk"
)

// runFlags override what the model file says.
type runFlags struct {
	shocks  string
	horizon int
	tol     float64
	maxIter int
	workers int
}

func (r *runFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&r.shocks, "shocks", "", "CSV of shocks (variable,period,value) applied after the model's own")
	f.IntVar(&r.horizon, "horizon", 0, "number of periods including the initial and terminal ones")
	f.Float64Var(&r.tol, "tol", 0, "convergence tolerance on the residual infinity norm")
	f.IntVar(&r.maxIter, "max-iter", 0, "maximum Newton steps")
	f.IntVar(&r.workers, "workers", 0, "goroutines used to evaluate equations")
}

// loadDefinition reads the model (or the built-in one) for mode and applies
// the command-line overrides.
func loadDefinition(g *globalFlags, r *runFlags, mode string) (*foresight.Definition, error) {
	var def *foresight.Definition
	var err error
	if g.model == "" {
		def, err = nk.Load(mode)
	} else {
		def, err = foresight.LoadModelFile(g.model, mode)
	}
	if err != nil {
		return nil, err
	}

	if r.shocks != "" {
		extra, err := foresight.LoadShocksCSV(r.shocks)
		if err != nil {
			return nil, err
		}
		def.Request.Shocks = append(def.Request.Shocks, extra...)
	}
	if r.horizon > 0 {
		def.Request.Horizon = r.horizon
	}
	if def.Request.Horizon == 0 {
		return nil, fmt.Errorf("no horizon: set simulation.horizon in the model or pass --horizon")
	}
	if r.tol > 0 {
		def.Options.Tolerance = r.tol
	}
	if r.maxIter > 0 {
		def.Options.MaxIter = r.maxIter
	}
	if r.workers > 0 {
		def.Options.Workers = r.workers
	}
	return def, nil
}

func newSolveCmd(g *globalFlags) *cobra.Command {
	r := &runFlags{}
	var out string
	var rows int
	var metrics bool

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve the transition path and print the deviations from the terminal state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shutdown, err := setupTracing(g.trace, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			// 1. Load model and simulation request
			def, err := loadDefinition(g, r, g.mode)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Model %s (%s mode), horizon %d, %d shock(s)\n",
				def.Name, def.Model.Mode(), def.Request.Horizon, len(def.Request.Shocks))

			// 2. Solve
			reg := prometheus.NewRegistry()
			solver := foresight.NewSolver(def.Model, def.Options, slog.Default()).
				WithMetrics(foresight.NewMetrics(reg))
			path, rep, err := solver.Simulate(cmd.Context(), def.Request)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Converged in %d iteration(s), residual %.3g, %d binding, %d active-set change(s)\n",
				rep.Iterations, rep.ResidualNorm, rep.Active, rep.Flips)

			// 3. Print deviations and summary
			foresight.PrintDeviations(w, path, rows)
			PrintSummary(w, Summarize(path))

			// 4. Output path to CSV
			if out != "" {
				if err := foresight.OutputPathToCSV(out, path); err != nil {
					return err
				}
				fmt.Fprintln(w, "Path written to", out)
			}

			// 5. Solver metrics
			if metrics {
				return writeMetrics(w, reg)
			}
			return nil
		},
	}
	r.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the solved path to this CSV file")
	cmd.Flags().IntVar(&rows, "rows", 12, "periods to print (0 prints all)")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print solver metrics in Prometheus text format")
	return cmd
}

func newCheckCmd(g *globalFlags) *cobra.Command {
	r := &runFlags{}
	var maxErr float64

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the model's Jacobian with central finite differences",
		Long: `check evaluates the stacked Jacobian at the warm start with shocks applied
and again at the solved path, and compares both with central finite
differences of the residual.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadDefinition(g, r, g.mode)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			// 1. Warm start with shocks
			start, err := foresight.NewPath(def.Model, def.Request.Horizon, def.Request.Initial, def.Request.Terminal)
			if err != nil {
				return err
			}
			for _, s := range def.Request.Shocks {
				if err := start.ApplyShock(s.Variable, s.Period, s.Value); err != nil {
					return err
				}
			}

			// 2. Solved path
			solved, _, err := foresight.Simulate(cmd.Context(), def.Model, def.Request, def.Options, slog.Default())
			if err != nil {
				return err
			}

			ev, err := foresight.NewEvaluator(def.Model, def.Request.Horizon, def.Options.Workers)
			if err != nil {
				return err
			}
			worst := 0.0
			for _, c := range []struct {
				name string
				path *foresight.Path
			}{{"warm start", start}, {"solution", solved}} {
				gap, err := ev.CheckJacobian(c.path)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%-10s  max |J - J_fd| = %.3e\n", c.name, gap)
				worst = math.Max(worst, gap)
			}
			if worst > maxErr {
				return fmt.Errorf("jacobian check failed: gap %.3e above %.3e", worst, maxErr)
			}
			fmt.Fprintln(w, "Jacobian OK")
			return nil
		},
	}
	r.register(cmd)
	cmd.Flags().Float64Var(&maxErr, "max-error", 1e-6, "largest accepted gap")
	return cmd
}

func newCompareCmd(g *globalFlags) *cobra.Command {
	r := &runFlags{}
	var maxGap float64

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Solve in newton and mcp mode and report the largest gap between the paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			paths := make(map[foresight.Mode]*foresight.Path, 2)
			for _, mode := range []foresight.Mode{foresight.ModeNewton, foresight.ModeMCP} {
				def, err := loadDefinition(g, r, mode.String())
				if err != nil {
					return err
				}
				path, rep, err := foresight.Simulate(cmd.Context(), def.Model, def.Request, def.Options, slog.Default())
				if err != nil {
					return fmt.Errorf("%s: %w", mode, err)
				}
				fmt.Fprintf(w, "%-6s  %d iteration(s), residual %.3g\n", mode, rep.Iterations, rep.ResidualNorm)
				paths[mode] = path
			}

			gaps, worst, err := PathGaps(paths[foresight.ModeNewton], paths[foresight.ModeMCP])
			if err != nil {
				return err
			}
			for _, gp := range gaps {
				fmt.Fprintf(w, "  %-12s max |newton - mcp| = %.3e\n", gp.Name, gp.Gap)
			}
			if worst > maxGap {
				return fmt.Errorf("newton and mcp paths differ by %.3e (limit %.3e)", worst, maxGap)
			}
			fmt.Fprintf(w, "Paths agree within %.3e\n", worst)
			return nil
		},
	}
	r.register(cmd)
	cmd.Flags().Float64Var(&maxGap, "max-gap", 1e-6, "largest accepted gap between the two paths")
	return cmd
}

// writeMetrics prints every gathered family in the Prometheus text format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "\n=== Solver metrics ===")
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// VariableGap is the largest absolute difference of one variable between two
// paths.
type VariableGap struct {
	Name string
	Gap  float64
}

// PathGaps compares two paths of the same variables and horizon.
func PathGaps(a, b *foresight.Path) ([]VariableGap, float64, error) {
	if a.Horizon() != b.Horizon() {
		return nil, 0, fmt.Errorf("horizons differ: %d and %d", a.Horizon(), b.Horizon())
	}
	worst := 0.0
	var out []VariableGap
	for _, v := range a.Model().Variables() {
		if v.Role != foresight.Endogenous {
			continue
		}
		sa, err := a.Series(v.Name)
		if err != nil {
			return nil, 0, err
		}
		sb, err := b.Series(v.Name)
		if err != nil {
			return nil, 0, err
		}
		gap := floats.Distance(sa, sb, math.Inf(1))
		out = append(out, VariableGap{Name: v.Name, Gap: gap})
		worst = math.Max(worst, gap)
	}
	return out, worst, nil
}
