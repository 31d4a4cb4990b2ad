package foresight

// Registry stores equations in declaration order. The position of an equation
// is its row inside every period block of the stacked system.
type Registry struct {
	eqs   []Equation
	index map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add registers an equation. Names must be unique.
func (r *Registry) Add(eq Equation) error {
	if eq.Name == "" {
		return errorf(ErrInvalidModel, "equation without a name")
	}
	if eq.Residual == nil {
		return errorf(ErrInvalidModel, "equation %q has no residual", eq.Name)
	}
	if len(eq.Reads) == 0 {
		return errorf(ErrInvalidModel, "equation %q reads no variables", eq.Name)
	}
	if _, ok := r.index[eq.Name]; ok {
		return errorf(ErrDuplicateName, "equation %q", eq.Name)
	}

	// reads are copied so the caller can't mutate them after registration
	reads := make([]Ref, len(eq.Reads))
	copy(reads, eq.Reads)
	eq.Reads = reads

	r.index[eq.Name] = len(r.eqs)
	r.eqs = append(r.eqs, eq)
	return nil
}

// Index returns the row of an equation within a period block.
func (r *Registry) Index(name string) (int, bool) {
	i, ok := r.index[name]
	return i, ok
}

func (r *Registry) Len() int { return len(r.eqs) }

// Equation returns the i-th equation in declaration order.
func (r *Registry) Equation(i int) Equation { return r.eqs[i] }

// Equations returns a copy of the registered equations.
func (r *Registry) Equations() []Equation {
	out := make([]Equation, len(r.eqs))
	copy(out, r.eqs)
	return out
}

// DependencyGraph returns, per equation, the (variable, offset) pairs it reads.
// It drives the Jacobian sparsity pattern.
func (r *Registry) DependencyGraph() [][]Ref {
	g := make([][]Ref, len(r.eqs))
	for i, eq := range r.eqs {
		g[i] = make([]Ref, len(eq.Reads))
		copy(g[i], eq.Reads)
	}
	return g
}

// MaxLag and MaxLead report the widest offsets used by any equation.
func (r *Registry) MaxLag() int {
	m := 0
	for _, eq := range r.eqs {
		for _, ref := range eq.Reads {
			if -ref.Offset > m {
				m = -ref.Offset
			}
		}
	}
	return m
}

func (r *Registry) MaxLead() int {
	m := 0
	for _, eq := range r.eqs {
		for _, ref := range eq.Reads {
			if ref.Offset > m {
				m = ref.Offset
			}
		}
	}
	return m
}
