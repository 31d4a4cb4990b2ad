package main

import (
	"fmt"
	"io"
	"math"

	"ELB_Perfect_Foresight/application/foresight"
)

// VariableSummary describes the response of one endogenous variable.
type VariableSummary struct {
	Name         string
	Trough       float64 // most negative deviation from the terminal state
	TroughPeriod int
	Peak         float64 // most positive deviation
	PeakPeriod   int
	Bound        bool // variable carries a complementarity tag
	AtBound      int  // free periods spent at the bound
}

// Summarize reports trough, peak, and time at the bound for every endogenous
// variable of a solved path.
func Summarize(p *foresight.Path) []VariableSummary {
	m := p.Model()
	dev := p.Deviations()
	T, _ := dev.Dims()

	bounds := map[string]foresight.Bounds{}
	for _, tag := range m.Constraints().Tags() {
		bounds[tag.Variable] = tag.Bounds
	}

	var out []VariableSummary
	for k, v := range m.Variables() {
		if v.Role != foresight.Endogenous {
			continue
		}
		s := VariableSummary{Name: v.Name, Trough: math.Inf(1), Peak: math.Inf(-1)}
		for t := 0; t < T; t++ {
			d := dev.At(t, k)
			if d < s.Trough {
				s.Trough, s.TroughPeriod = d, t
			}
			if d > s.Peak {
				s.Peak, s.PeakPeriod = d, t
			}
		}

		if b, ok := bounds[v.Name]; ok {
			s.Bound = true
			// a clamped variable sits exactly on its bound
			for t := 1; t < T-1; t++ {
				x := p.At(t, k)
				if x == b.Lower || x == b.Upper {
					s.AtBound++
				}
			}
		}
		out = append(out, s)
	}
	return out
}

// PrintSummary prints one line per variable.
func PrintSummary(w io.Writer, rows []VariableSummary) {
	fmt.Fprintln(w, "\n=== Response summary (deviation from terminal state) ===")
	fmt.Fprintf(w, "%-12s %14s %6s %14s %6s %9s\n", "variable", "trough", "t", "peak", "t", "at bound")
	for _, s := range rows {
		atBound := "-"
		if s.Bound {
			atBound = fmt.Sprintf("%d", s.AtBound)
		}
		fmt.Fprintf(w, "%-12s %14.6g %6d %14.6g %6d %9s\n",
			s.Name, s.Trough, s.TroughPeriod, s.Peak, s.PeakPeriod, atBound)
	}
}
