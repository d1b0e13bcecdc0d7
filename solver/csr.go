// Package solver provides sparse symmetric positive definite linear solvers.
package solver

import (
	"github.com/soypat/poisson/internal/parallel"
)

// CSR is a square sparse matrix in compressed sparse row form. Row i holds
// the entries Val[RowPtr[i]:RowPtr[i+1]] at columns Col[RowPtr[i]:RowPtr[i+1]].
type CSR struct {
	N      int
	RowPtr []int
	Col    []int32
	Val    []float64
}

// NewCSR returns an empty matrix of n rows ready for AppendRow.
func NewCSR(n, nnz int) *CSR {
	m := &CSR{
		N:      n,
		RowPtr: make([]int, 1, n+1),
		Col:    make([]int32, 0, nnz),
		Val:    make([]float64, 0, nnz),
	}
	return m
}

// AppendRow adds the next row of the matrix.
func (m *CSR) AppendRow(cols []int32, vals []float64) {
	m.Col = append(m.Col, cols...)
	m.Val = append(m.Val, vals...)
	m.RowPtr = append(m.RowPtr, len(m.Col))
}

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int { return len(m.Val) }

// Diagonal returns the diagonal entries of m.
func (m *CSR) Diagonal() []float64 {
	diag := make([]float64, m.N)
	for i := 0; i < m.N; i++ {
		for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
			if int(m.Col[p]) == i {
				diag[i] += m.Val[p]
			}
		}
	}
	return diag
}

// MulVec computes dst = m*x. Rows are split over workers and each row is
// summed in storage order.
func (m *CSR) MulVec(dst, x []float64, workers int) {
	parallel.For(workers, m.N, func(_, from, to int) error {
		for i := from; i < to; i++ {
			var sum float64
			for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
				sum += m.Val[p] * x[m.Col[p]]
			}
			dst[i] = sum
		}
		return nil
	})
}
