package foresight

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
)

// Expression equations use Go expression syntax:
//
//	pi = beta*pi(+1) + kappa*y
//	i  = max(rlb, phi_pi*pi + phi_y*y)
//
// A variable name called with an integer, x(-1) or x(+1), is a lag or lead.
// Bare identifiers are parameters or current-period variables. Supported
// functions: exp, log, sqrt, abs, pow, max, min. "lhs = rhs" compiles to the
// residual lhs - rhs; an expression without "=" is the residual itself.

// Symbols resolves identifiers while compiling an expression.
type Symbols interface {
	Param(name string) (float64, bool)
	HasVariable(name string) bool
}

// node evaluates at x and, when g is non-nil, overwrites g with the gradient
// with respect to x.
type node func(x, g []float64) float64

type exprCompiler struct {
	syms  Symbols
	src   string
	reads []Ref
	index map[Ref]int
}

// CompileEquation turns an expression into an Equation with an analytic
// gradient. Reads are collected in order of first appearance.
func CompileEquation(name, src string, syms Symbols) (Equation, error) {
	body, err := residualSource(src)
	if err != nil {
		return Equation{}, errorf(ErrInvalidModel, "equation %q: %v", name, err)
	}
	e, err := parser.ParseExpr(body)
	if err != nil {
		return Equation{}, errorf(ErrInvalidModel, "equation %q: parse %q: %v", name, src, err)
	}
	c := &exprCompiler{syms: syms, src: body, index: make(map[Ref]int)}
	root, err := c.compile(e)
	if err != nil {
		return Equation{}, errorf(ErrInvalidModel, "equation %q: %v", name, err)
	}
	if len(c.reads) == 0 {
		return Equation{}, errorf(ErrInvalidModel, "equation %q reads no variables", name)
	}

	return Equation{
		Name:     name,
		Reads:    c.reads,
		Residual: func(x []float64) float64 { return root(x, nil) },
		Gradient: func(x, grad []float64) { root(x, grad) },
	}, nil
}

// residualSource rewrites "lhs = rhs" as "(lhs) - (rhs)".
func residualSource(src string) (string, error) {
	s := strings.TrimSpace(src)
	if s == "" {
		return "", errors.New("empty expression")
	}
	if strings.ContainsAny(s, "<>!") || strings.Contains(s, "==") {
		return "", fmt.Errorf("comparison operators are not supported in %q", src)
	}
	parts := strings.Split(s, "=")
	switch len(parts) {
	case 1:
		return s, nil
	case 2:
		lhs, rhs := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if lhs == "" || rhs == "" {
			return "", fmt.Errorf("incomplete equation %q", src)
		}
		return "(" + lhs + ") - (" + rhs + ")", nil
	}
	return "", fmt.Errorf("more than one '=' in %q", src)
}

func (c *exprCompiler) ref(name string, offset int) int {
	r := Ref{Var: name, Offset: offset}
	if i, ok := c.index[r]; ok {
		return i
	}
	c.index[r] = len(c.reads)
	c.reads = append(c.reads, r)
	return len(c.reads) - 1
}

func (c *exprCompiler) errAt(n ast.Node, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lo, hi := int(n.Pos())-1, int(n.End())-1
	if lo >= 0 && hi <= len(c.src) && lo < hi {
		return fmt.Errorf("%s near %q", msg, c.src[lo:hi])
	}
	return errors.New(msg)
}

func (c *exprCompiler) compile(e ast.Expr) (node, error) {
	switch e := e.(type) {
	case *ast.ParenExpr:
		return c.compile(e.X)

	case *ast.BasicLit:
		if e.Kind != token.INT && e.Kind != token.FLOAT {
			return nil, c.errAt(e, "unsupported literal %s", e.Value)
		}
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return nil, c.errAt(e, "bad number %s", e.Value)
		}
		return constant(v), nil

	case *ast.Ident:
		if c.syms.HasVariable(e.Name) {
			return variable(c.ref(e.Name, 0)), nil
		}
		if v, ok := c.syms.Param(e.Name); ok {
			return constant(v), nil
		}
		return nil, c.errAt(e, "unknown identifier %q", e.Name)

	case *ast.UnaryExpr:
		x, err := c.compile(e.X)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return scale(x, -1), nil
		}
		return nil, c.errAt(e, "unsupported operator %s", e.Op)

	case *ast.BinaryExpr:
		l, err := c.compile(e.X)
		if err != nil {
			return nil, err
		}
		r, err := c.compile(e.Y)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case token.ADD:
			return add(l, r, 1), nil
		case token.SUB:
			return add(l, r, -1), nil
		case token.MUL:
			return mul(l, r), nil
		case token.QUO:
			return quo(l, r), nil
		}
		return nil, c.errAt(e, "unsupported operator %s (use pow for powers)", e.Op)

	case *ast.CallExpr:
		fn, ok := e.Fun.(*ast.Ident)
		if !ok {
			return nil, c.errAt(e, "unsupported call")
		}
		if c.syms.HasVariable(fn.Name) {
			return c.laggedVariable(fn.Name, e)
		}
		return c.call(fn.Name, e)
	}
	return nil, c.errAt(e, "unsupported expression")
}

// laggedVariable handles x(-1), x(+1), x(2).
func (c *exprCompiler) laggedVariable(name string, e *ast.CallExpr) (node, error) {
	if len(e.Args) != 1 {
		return nil, c.errAt(e, "%s(...) takes one integer offset", name)
	}
	arg := e.Args[0]
	dir := 1
	if u, ok := arg.(*ast.UnaryExpr); ok {
		switch u.Op {
		case token.SUB:
			dir = -1
		case token.ADD:
		default:
			return nil, c.errAt(u, "bad offset for %s", name)
		}
		arg = u.X
	}
	lit, ok := arg.(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return nil, c.errAt(e, "offset of %s must be an integer literal", name)
	}
	off, err := strconv.Atoi(lit.Value)
	if err != nil {
		return nil, c.errAt(lit, "bad offset %s", lit.Value)
	}
	return variable(c.ref(name, dir*off)), nil
}

func (c *exprCompiler) call(name string, e *ast.CallExpr) (node, error) {
	args := make([]node, len(e.Args))
	for i, a := range e.Args {
		n, err := c.compile(a)
		if err != nil {
			return nil, err
		}
		args[i] = n
	}
	want := 1
	switch name {
	case "pow", "max", "min":
		want = 2
	}
	if len(args) != want {
		return nil, c.errAt(e, "%s takes %d argument(s), got %d", name, want, len(args))
	}

	switch name {
	case "exp":
		return unary(args[0], math.Exp, math.Exp), nil
	case "log":
		return unary(args[0], math.Log, func(v float64) float64 { return 1 / v }), nil
	case "sqrt":
		return unary(args[0], math.Sqrt, func(v float64) float64 { return 0.5 / math.Sqrt(v) }), nil
	case "abs":
		return unary(args[0], math.Abs, sign), nil
	case "pow":
		return pow(args[0], args[1]), nil
	case "max":
		return pick(args[0], args[1], func(a, b float64) bool { return a >= b }), nil
	case "min":
		return pick(args[0], args[1], func(a, b float64) bool { return a <= b }), nil
	}
	return nil, c.errAt(e, "unknown function %q", name)
}

func zero(g []float64) {
	for i := range g {
		g[i] = 0
	}
}

func constant(v float64) node {
	return func(_, g []float64) float64 {
		zero(g)
		return v
	}
}

func variable(i int) node {
	return func(x, g []float64) float64 {
		if g != nil {
			zero(g)
			g[i] = 1
		}
		return x[i]
	}
}

func scale(a node, k float64) node {
	return func(x, g []float64) float64 {
		v := a(x, g)
		for i := range g {
			g[i] *= k
		}
		return k * v
	}
}

// add returns a + k*b.
func add(a, b node, k float64) node {
	return func(x, g []float64) float64 {
		if g == nil {
			return a(x, nil) + k*b(x, nil)
		}
		tmp := make([]float64, len(g))
		va := a(x, g)
		vb := b(x, tmp)
		for i := range g {
			g[i] += k * tmp[i]
		}
		return va + k*vb
	}
}

func mul(a, b node) node {
	return func(x, g []float64) float64 {
		if g == nil {
			return a(x, nil) * b(x, nil)
		}
		tmp := make([]float64, len(g))
		va := a(x, g)
		vb := b(x, tmp)
		for i := range g {
			g[i] = g[i]*vb + va*tmp[i]
		}
		return va * vb
	}
}

func quo(a, b node) node {
	return func(x, g []float64) float64 {
		if g == nil {
			return a(x, nil) / b(x, nil)
		}
		tmp := make([]float64, len(g))
		va := a(x, g)
		vb := b(x, tmp)
		for i := range g {
			g[i] = (g[i]*vb - va*tmp[i]) / (vb * vb)
		}
		return va / vb
	}
}

func unary(a node, f, df func(float64) float64) node {
	return func(x, g []float64) float64 {
		v := a(x, g)
		if g != nil {
			d := df(v)
			for i := range g {
				g[i] *= d
			}
		}
		return f(v)
	}
}

func pow(a, b node) node {
	return func(x, g []float64) float64 {
		if g == nil {
			return math.Pow(a(x, nil), b(x, nil))
		}
		tmp := make([]float64, len(g))
		va := a(x, g)
		vb := b(x, tmp)
		v := math.Pow(va, vb)
		dExp := false
		for _, d := range tmp {
			if d != 0 {
				dExp = true
				break
			}
		}
		for i := range g {
			g[i] *= vb * math.Pow(va, vb-1)
			if dExp {
				g[i] += v * math.Log(va) * tmp[i]
			}
		}
		return v
	}
}

// pick implements max/min with the gradient of the selected branch, which is
// what semi-smooth Newton needs at a kink.
func pick(a, b node, first func(a, b float64) bool) node {
	return func(x, g []float64) float64 {
		if g == nil {
			va, vb := a(x, nil), b(x, nil)
			if first(va, vb) {
				return va
			}
			return vb
		}
		tmp := make([]float64, len(g))
		va := a(x, g)
		vb := b(x, tmp)
		if first(va, vb) {
			return va
		}
		copy(g, tmp)
		return vb
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
