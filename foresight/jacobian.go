package foresight

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

type triplet struct {
	row, col int
	val      float64
}

// Jacobian is the sparse derivative of the stacked residual with respect to
// the free path entries, stored in compressed-row form. It satisfies
// mat.Matrix so it can be printed or compared with gonum tools.
type Jacobian struct {
	n      int
	rowPtr []int
	cols   []int
	vals   []float64
}

// newJacobian sorts the triplets by (row, col) and sums duplicates.
func newJacobian(n int, ts []triplet) *Jacobian {
	sort.SliceStable(ts, func(a, b int) bool {
		if ts[a].row != ts[b].row {
			return ts[a].row < ts[b].row
		}
		return ts[a].col < ts[b].col
	})

	j := &Jacobian{
		n:      n,
		rowPtr: make([]int, n+1),
		cols:   make([]int, 0, len(ts)),
		vals:   make([]float64, 0, len(ts)),
	}
	for i, tr := range ts {
		if i > 0 && tr.row == ts[i-1].row && tr.col == ts[i-1].col {
			j.vals[len(j.vals)-1] += tr.val
			continue
		}
		j.cols = append(j.cols, tr.col)
		j.vals = append(j.vals, tr.val)
		j.rowPtr[tr.row+1]++
	}
	for r := 0; r < n; r++ {
		j.rowPtr[r+1] += j.rowPtr[r]
	}
	return j
}

func (j *Jacobian) Dims() (r, c int) { return j.n, j.n }

// At returns entry (i, k); zero outside the sparsity pattern.
func (j *Jacobian) At(i, k int) float64 {
	if i < 0 || i >= j.n || k < 0 || k >= j.n {
		panic(mat.ErrIndexOutOfRange)
	}
	lo, hi := j.rowPtr[i], j.rowPtr[i+1]
	p := lo + sort.SearchInts(j.cols[lo:hi], k)
	if p < hi && j.cols[p] == k {
		return j.vals[p]
	}
	return 0
}

func (j *Jacobian) T() mat.Matrix { return mat.Transpose{Matrix: j} }

// NNZ is the number of stored entries.
func (j *Jacobian) NNZ() int { return len(j.vals) }

// RowPattern returns the columns stored for row i.
func (j *Jacobian) RowPattern(i int) []int {
	return append([]int(nil), j.cols[j.rowPtr[i]:j.rowPtr[i+1]]...)
}

// Do calls fn for every stored entry in row-major order.
func (j *Jacobian) Do(fn func(i, k int, v float64)) {
	for i := 0; i < j.n; i++ {
		for p := j.rowPtr[i]; p < j.rowPtr[i+1]; p++ {
			fn(i, j.cols[p], j.vals[p])
		}
	}
}

// Dense scatters the entries into a new dense matrix.
func (j *Jacobian) Dense() *mat.Dense {
	d := mat.NewDense(j.n, j.n, nil)
	j.Do(func(i, k int, v float64) { d.Set(i, k, v) })
	return d
}
