package foresight

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ModelFile is the YAML model definition. Equations may carry a newton
// variant and an mcp tag; the build mode decides which one is used.
//
//	mode: mcp
//	variables:
//	  endogenous: [{name: i, label: Nominal rate}]
//	  exogenous:  [{name: e}]
//	parameters: {rlb: -0.0055}
//	equations:
//	  - name: taylor
//	    expr: "i = phi_pi*pi + phi_y*y"
//	    newton: "i = max(rlb, phi_pi*pi + phi_y*y)"
//	    mcp: {variable: i, lower: rlb}
type ModelFile struct {
	Name       string             `yaml:"name"`
	Mode       string             `yaml:"mode" validate:"omitempty,oneof=newton mcp NEWTON MCP"`
	Variables  VariablesSpec      `yaml:"variables"`
	Parameters map[string]float64 `yaml:"parameters"`
	Equations  []EquationSpec     `yaml:"equations" validate:"required,min=1,dive"`
	Solver     SolverSpec         `yaml:"solver"`
	Simulation SimulationSpec     `yaml:"simulation"`
}

type VariablesSpec struct {
	Endogenous []VariableSpec `yaml:"endogenous" validate:"required,min=1,dive"`
	Exogenous  []VariableSpec `yaml:"exogenous" validate:"dive"`
}

type VariableSpec struct {
	Name  string `yaml:"name" validate:"required"`
	Label string `yaml:"label"`
}

type EquationSpec struct {
	Name   string   `yaml:"name" validate:"required"`
	Expr   string   `yaml:"expr" validate:"required"`
	Newton string   `yaml:"newton"`
	Smooth string   `yaml:"smooth"`
	MCP    *MCPSpec `yaml:"mcp"`
}

type MCPSpec struct {
	Variable string      `yaml:"variable" validate:"required"`
	Lower    *BoundValue `yaml:"lower"`
	Upper    *BoundValue `yaml:"upper"`
}

// BoundValue is either a number or the name of a parameter.
type BoundValue struct {
	Value float64
	Param string
}

func (b *BoundValue) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: bound must be a number or a parameter name", n.Line)
	}
	if v, err := strconv.ParseFloat(n.Value, 64); err == nil {
		b.Value = v
		return nil
	}
	b.Param = n.Value
	return nil
}

func (b *BoundValue) resolve(params map[string]float64, inf float64) (float64, error) {
	if b == nil {
		return inf, nil
	}
	if b.Param == "" {
		return b.Value, nil
	}
	v, ok := params[b.Param]
	if !ok {
		return 0, errorf(ErrUnknownVariable, "bound refers to undeclared parameter %q", b.Param)
	}
	return v, nil
}

type SolverSpec struct {
	Tolerance float64 `yaml:"tolerance" validate:"gte=0"`
	MaxIter   int     `yaml:"max_iter" validate:"gte=0"`
	Workers   int     `yaml:"workers" validate:"gte=0"`
}

type SimulationSpec struct {
	Horizon  int                `yaml:"horizon" validate:"omitempty,gte=3"`
	Initial  map[string]float64 `yaml:"initial"`
	Terminal map[string]float64 `yaml:"terminal"`
	Shocks   []ShockSpec        `yaml:"shocks" validate:"dive"`
}

type ShockSpec struct {
	Variable string  `yaml:"variable" validate:"required"`
	Period   int     `yaml:"period" validate:"gte=0"`
	Value    float64 `yaml:"value"`
}

// Definition is a loaded model plus the solver options and simulation
// request found in its file.
type Definition struct {
	Name    string
	Model   *Model
	Options Options
	Request SimulationRequest
}

var fileValidate = validator.New()

// LoadModelFile reads and builds a YAML model definition. A non-empty mode
// overrides the file's mode.
func LoadModelFile(path, mode string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	def, err := ParseModel(data, mode)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return def, nil
}

// ParseModel builds a model from YAML. A non-empty mode overrides the file's.
func ParseModel(data []byte, mode string) (*Definition, error) {
	var f ModelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errorf(ErrInvalidModel, "yaml: %v", err)
	}
	if err := fileValidate.Struct(&f); err != nil {
		return nil, errorf(ErrInvalidModel, "%v", err)
	}

	if mode == "" {
		mode = f.Mode
	}
	if mode == "" {
		mode = ModeNewton.String()
	}
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}

	b := NewBuilder(m)
	for _, v := range f.Variables.Endogenous {
		if err := b.Endogenous(v.Name, v.Label); err != nil {
			return nil, err
		}
	}
	for _, v := range f.Variables.Exogenous {
		if err := b.Exogenous(v.Name, v.Label); err != nil {
			return nil, err
		}
	}
	for name, v := range f.Parameters {
		if err := b.Parameter(name, v); err != nil {
			return nil, err
		}
	}

	for _, es := range f.Equations {
		if err := addEquation(b, es, f.Parameters); err != nil {
			return nil, err
		}
	}

	model, err := b.Build()
	if err != nil {
		return nil, err
	}

	opts := Options{
		Tolerance: f.Solver.Tolerance,
		MaxIter:   f.Solver.MaxIter,
		Workers:   f.Solver.Workers,
	}.withDefaults()
	if opts.Workers == 0 {
		opts.Workers = 1
	}

	req := SimulationRequest{
		Horizon:  f.Simulation.Horizon,
		Initial:  f.Simulation.Initial,
		Terminal: f.Simulation.Terminal,
	}
	for _, s := range f.Simulation.Shocks {
		req.Shocks = append(req.Shocks, Shock{Variable: s.Variable, Period: s.Period, Value: s.Value})
	}

	return &Definition{Name: f.Name, Model: model, Options: opts, Request: req}, nil
}

// addEquation picks the variant for the build mode. In newton mode an MCP tag
// needs a newton variant that expresses the bound inside the residual.
func addEquation(b *Builder, es EquationSpec, params map[string]float64) error {
	src := es.Expr
	if b.Mode() == ModeNewton && es.Newton != "" {
		src = es.Newton
	}
	if err := b.EquationExpr(es.Name, src); err != nil {
		return err
	}
	if es.Smooth != "" {
		if err := b.Smooth(es.Name, es.Smooth); err != nil {
			return err
		}
	}
	if es.MCP == nil {
		return nil
	}

	if b.Mode() == ModeNewton {
		if es.Newton == "" {
			return errorf(ErrConflictingConstraint, "equation %q is MCP-tagged but has no newton variant", es.Name)
		}
		if es.Smooth == es.MCP.Variable {
			return nil
		}
		return b.Smooth(es.Name, es.MCP.Variable)
	}

	lo, err := es.MCP.Lower.resolve(params, math.Inf(-1))
	if err != nil {
		return err
	}
	hi, err := es.MCP.Upper.resolve(params, math.Inf(1))
	if err != nil {
		return err
	}
	return b.Complementary(es.Name, es.MCP.Variable, Bounds{Lower: lo, Upper: hi})
}
