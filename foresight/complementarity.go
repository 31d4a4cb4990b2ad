package foresight

import (
	"math"
)

// Constraints attaches complementarity tags (and smooth-bound markers) to
// registered equations. At most one bound pair per equation and one tag per
// variable.
type Constraints struct {
	reg     *Registry
	byEq    map[string]Complementarity
	byVar   map[string]string // variable -> tagging equation
	smooth  map[string]string // variable -> equation with a max/min reformulation
	ordered []string          // equations in tagging order
}

func NewConstraints(reg *Registry) *Constraints {
	return &Constraints{
		reg:    reg,
		byEq:   make(map[string]Complementarity),
		byVar:  make(map[string]string),
		smooth: make(map[string]string),
	}
}

// MarkComplementary puts an equation under MCP semantics with respect to
// variable: at the lower bound the residual must be >= 0, strictly inside the
// bounds it must be 0, at the upper bound it must be <= 0.
func (c *Constraints) MarkComplementary(equation, variable string, b Bounds) error {
	if _, ok := c.reg.Index(equation); !ok {
		return errorf(ErrUnknownEquation, "%q", equation)
	}
	if variable == "" {
		return errorf(ErrInvalidModel, "complementarity on %q needs a variable", equation)
	}
	if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) {
		return errorf(ErrInvalidModel, "NaN bound on %q", variable)
	}
	if !b.HasLower() && !b.HasUpper() {
		return errorf(ErrInvalidModel, "complementarity on %q has no finite bound", equation)
	}
	if b.Lower > b.Upper {
		return errorf(ErrConflictingConstraint, "lower bound %g above upper bound %g for %q", b.Lower, b.Upper, variable)
	}
	if prev, ok := c.byEq[equation]; ok {
		return errorf(ErrConflictingConstraint, "equation %q already tagged with %q", equation, prev.Variable)
	}
	if eq, ok := c.byVar[variable]; ok {
		return errorf(ErrConflictingConstraint, "variable %q already tagged by equation %q", variable, eq)
	}
	if eq, ok := c.smooth[variable]; ok {
		return errorf(ErrConflictingConstraint, "variable %q is bounded by a smooth reformulation in %q", variable, eq)
	}

	c.byEq[equation] = Complementarity{Equation: equation, Variable: variable, Bounds: b}
	c.byVar[variable] = equation
	c.ordered = append(c.ordered, equation)
	return nil
}

// MarkSmooth records that the bound on variable is expressed inside equation's
// residual (e.g. i = max(floor, rule)) and is solved by Newton.
func (c *Constraints) MarkSmooth(equation, variable string) error {
	if _, ok := c.reg.Index(equation); !ok {
		return errorf(ErrUnknownEquation, "%q", equation)
	}
	if eq, ok := c.byVar[variable]; ok {
		return errorf(ErrConflictingConstraint, "variable %q is MCP-tagged by %q and cannot also be smooth-bounded", variable, eq)
	}
	if eq, ok := c.smooth[variable]; ok && eq != equation {
		return errorf(ErrConflictingConstraint, "variable %q already smooth-bounded in %q", variable, eq)
	}
	c.smooth[variable] = equation
	return nil
}

// Lookup returns the tag on an equation, if any.
func (c *Constraints) Lookup(equation string) (Complementarity, bool) {
	cc, ok := c.byEq[equation]
	return cc, ok
}

// Tags returns the complementarity tags in the order they were declared.
func (c *Constraints) Tags() []Complementarity {
	out := make([]Complementarity, 0, len(c.ordered))
	for _, name := range c.ordered {
		out = append(out, c.byEq[name])
	}
	return out
}

func (c *Constraints) Len() int { return len(c.ordered) }

// SmoothBounded reports whether variable's bound is handled by a reformulation.
func (c *Constraints) SmoothBounded(variable string) bool {
	_, ok := c.smooth[variable]
	return ok
}
