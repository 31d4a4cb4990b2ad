package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	model    string
	mode     string
	logLevel string
	trace    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "elbsim",
		Short: "Perfect-foresight simulation with an effective lower bound",
		Long: `elbsim solves deterministic transition paths of dynamic equation systems.
Bounds on variables are handled either by Newton on max/min reformulations
or by an active-set complementarity (MCP) solve.

Without --model the built-in New Keynesian ELB model is used.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(g.logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.model, "model", "m", "", "YAML model definition (default: built-in NK ELB model)")
	pf.StringVar(&g.mode, "mode", "", "solve mode: newton or mcp (default: the model file's mode)")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.BoolVar(&g.trace, "trace", false, "print solver spans to stderr")

	root.AddCommand(newSolveCmd(g), newCheckCmd(g), newCompareCmd(g))
	return root
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
