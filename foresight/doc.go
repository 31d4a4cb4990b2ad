// Package foresight solves deterministic (perfect-foresight) transition paths
// of dynamic equation systems with lags and leads.
//
// A model is declared once with a Builder: variables, parameters, equations
// and, in MCP mode, complementarity tags that bound a variable and relax its
// equation to an inequality at the bound. The Evaluator stacks every equation
// over every free period into F(X) with a sparse Jacobian, and the Solver
// iterates Newton steps (or active-set projected Newton steps in MCP mode) on
// the whole path at once.
//
//	def, _ := foresight.LoadModelFile("nk_elb.yaml", "mcp")
//	path, rep, err := foresight.Simulate(ctx, def.Model, def.Request, def.Options, nil)
package foresight
