package foresight

import (
	"sort"
)

// Builder collects declarations. Build validates them and freezes the result
// into a Model.
type Builder struct {
	mode   Mode
	vars   []Variable
	names  map[string]bool
	params map[string]float64
	reg    *Registry
	cons   *Constraints
	built  bool
}

// NewBuilder starts a model whose solve mode is fixed to mode.
func NewBuilder(mode Mode) *Builder {
	reg := NewRegistry()
	return &Builder{
		mode:   mode,
		names:  make(map[string]bool),
		params: make(map[string]float64),
		reg:    reg,
		cons:   NewConstraints(reg),
	}
}

func (b *Builder) Mode() Mode { return b.mode }

func (b *Builder) frozen() error {
	if b.built {
		return errorf(ErrInvalidModel, "builder already produced a model")
	}
	return nil
}

func (b *Builder) declare(v Variable) error {
	if err := b.frozen(); err != nil {
		return err
	}
	if v.Name == "" {
		return errorf(ErrInvalidModel, "variable without a name")
	}
	if b.names[v.Name] {
		return errorf(ErrDuplicateName, "variable or parameter %q", v.Name)
	}
	b.names[v.Name] = true
	b.vars = append(b.vars, v)
	return nil
}

// Endogenous declares a variable solved for by the model.
func (b *Builder) Endogenous(name, label string) error {
	return b.declare(Variable{Name: name, Role: Endogenous, Label: label})
}

// Exogenous declares a shock variable whose path is fixed from outside.
func (b *Builder) Exogenous(name, label string) error {
	return b.declare(Variable{Name: name, Role: Exogenous, Label: label})
}

func (b *Builder) Parameter(name string, value float64) error {
	if err := b.frozen(); err != nil {
		return err
	}
	if name == "" {
		return errorf(ErrInvalidModel, "parameter without a name")
	}
	if b.names[name] {
		return errorf(ErrDuplicateName, "variable or parameter %q", name)
	}
	b.names[name] = true
	b.params[name] = value
	return nil
}

// Param returns a declared parameter value.
func (b *Builder) Param(name string) (float64, bool) {
	v, ok := b.params[name]
	return v, ok
}

// HasVariable reports whether name was declared as a variable.
func (b *Builder) HasVariable(name string) bool {
	for _, v := range b.vars {
		if v.Name == name {
			return true
		}
	}
	return false
}

// EquationExpr compiles an expression equation against the variables and
// parameters declared so far and registers it.
func (b *Builder) EquationExpr(name, src string) error {
	eq, err := CompileEquation(name, src, b)
	if err != nil {
		return err
	}
	return b.Equation(eq)
}

func (b *Builder) Equation(eq Equation) error {
	if err := b.frozen(); err != nil {
		return err
	}
	return b.reg.Add(eq)
}

func (b *Builder) Complementary(equation, variable string, bounds Bounds) error {
	if err := b.frozen(); err != nil {
		return err
	}
	if b.mode == ModeNewton {
		return errorf(ErrConflictingConstraint, "complementarity on %q requested in newton mode", variable)
	}
	return b.cons.MarkComplementary(equation, variable, bounds)
}

func (b *Builder) Smooth(equation, variable string) error {
	if err := b.frozen(); err != nil {
		return err
	}
	return b.cons.MarkSmooth(equation, variable)
}

// Build checks the declarations and returns an immutable model.
func (b *Builder) Build() (*Model, error) {
	if err := b.frozen(); err != nil {
		return nil, err
	}
	m := &Model{
		mode:   b.mode,
		params: make(map[string]float64, len(b.params)),
		index:  make(map[string]int, len(b.vars)),
		reg:    b.reg,
		cons:   b.cons,
	}

	// endogenous first: their column order is the block order of the stacked system
	for _, v := range b.vars {
		if v.Role == Endogenous {
			m.vars = append(m.vars, v)
		}
	}
	m.nEndo = len(m.vars)
	for _, v := range b.vars {
		if v.Role == Exogenous {
			m.vars = append(m.vars, v)
		}
	}
	for i, v := range m.vars {
		m.index[v.Name] = i
	}
	for k, v := range b.params {
		m.params[k] = v
	}

	if m.nEndo == 0 {
		return nil, errorf(ErrInvalidModel, "no endogenous variables")
	}
	if b.reg.Len() != m.nEndo {
		return nil, errorf(ErrInvalidModel, "%d equations for %d endogenous variables", b.reg.Len(), m.nEndo)
	}
	for _, eq := range b.reg.eqs {
		for _, ref := range eq.Reads {
			if _, ok := m.index[ref.Var]; !ok {
				return nil, errorf(ErrUnknownVariable, "equation %q reads %q", eq.Name, ref.Var)
			}
		}
	}
	for _, tag := range b.cons.Tags() {
		i, ok := m.index[tag.Variable]
		if !ok {
			return nil, errorf(ErrUnknownVariable, "complementarity on %q", tag.Variable)
		}
		if m.vars[i].Role != Endogenous {
			return nil, errorf(ErrInvalidModel, "complementarity variable %q is exogenous", tag.Variable)
		}
	}
	for v := range b.cons.smooth {
		if _, ok := m.index[v]; !ok {
			return nil, errorf(ErrUnknownVariable, "smooth bound on %q", v)
		}
	}
	b.built = true
	return m, nil
}

// Model is a validated, immutable equation system.
type Model struct {
	mode   Mode
	vars   []Variable
	nEndo  int
	index  map[string]int
	params map[string]float64
	reg    *Registry
	cons   *Constraints
}

func (m *Model) Mode() Mode { return m.mode }

// Variables returns endogenous variables first, then exogenous ones. This is
// the column order of a Path.
func (m *Model) Variables() []Variable {
	out := make([]Variable, len(m.vars))
	copy(out, m.vars)
	return out
}

// VarNames returns variable names in column order.
func (m *Model) VarNames() []string {
	out := make([]string, len(m.vars))
	for i, v := range m.vars {
		out[i] = v.Name
	}
	return out
}

func (m *Model) NumEndogenous() int { return m.nEndo }
func (m *Model) NumVariables() int  { return len(m.vars) }

// VarIndex returns the column of a variable.
func (m *Model) VarIndex(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

func (m *Model) Param(name string) (float64, bool) {
	v, ok := m.params[name]
	return v, ok
}

// ParamNames returns parameter names sorted alphabetically.
func (m *Model) ParamNames() []string {
	out := make([]string, 0, len(m.params))
	for k := range m.params {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Model) Registry() *Registry        { return m.reg }
func (m *Model) Constraints() *Constraints { return m.cons }
