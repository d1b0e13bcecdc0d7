package fem

import (
	"github.com/soypat/poisson/internal/parallel"
)

type term struct {
	in     int
	weight float64
}

// LineOperator is a sparse linear map from a line of In coefficients to a
// line of Out values. Applied along each axis in turn it evaluates tensor
// product expansions without visiting every coefficient per output.
type LineOperator struct {
	In, Out int
	rows    [][]term
}

// NewLineOperator returns an empty operator from in to out values.
func NewLineOperator(in, out int) *LineOperator {
	return &LineOperator{In: in, Out: out, rows: make([][]term, out)}
}

// Add accumulates weight*in[i] into output o.
func (op *LineOperator) Add(o, i int, weight float64) {
	op.rows[o] = append(op.rows[o], term{in: i, weight: weight})
}

func (op *LineOperator) apply(in, out []float64) {
	for o, row := range op.rows {
		var sum float64
		for _, t := range row {
			sum += t.weight * in[t.in]
		}
		out[o] = sum
	}
}

// EvaluationOperator returns the operator mapping depth coefficients to the
// field values at positions xs in [0,1].
func EvaluationOperator(b Basis, depth int, xs []float64) *LineOperator {
	op := NewLineOperator(1<<depth, len(xs))
	var vals []Entry
	for o, x := range xs {
		vals = b.Values(vals, depth, x)
		for _, e := range vals {
			op.Add(o, int(e.Index), e.Value)
		}
	}
	return op
}

// ProlongationOperator returns the operator expressing depth coefficients as
// depth+1 coefficients of the same function.
func ProlongationOperator(b Basis, depth int) *LineOperator {
	coarse := int64(1) << depth
	fine := 2 * coarse
	op := NewLineOperator(int(coarse), int(fine))
	// Scatter order fixes the summation order of every row.
	shift := int64(b.Degree() / 2)
	for i := int64(0); i < coarse; i++ {
		for k, w := range b.refine {
			j := fold(2*i+int64(k)-shift, fine)
			op.Add(int(j), int(i), w)
		}
	}
	return op
}

// ApplySeparable applies ops[a] along axis a of the row major array src of
// dimensions dims, x slowest. The result has dimensions ops[a].Out.
func ApplySeparable(src []float64, dims [3]int, ops [3]*LineOperator, workers int) ([]float64, [3]int) {
	for axis, op := range ops {
		if op.In != dims[axis] {
			panic("fem: line operator does not match array dimensions")
		}
		src, dims = transformAxis(src, dims, axis, op, workers)
	}
	return src, dims
}

func transformAxis(src []float64, dims [3]int, axis int, op *LineOperator, workers int) ([]float64, [3]int) {
	out := dims
	out[axis] = op.Out
	inStride := strides(dims)
	outStride := strides(out)
	a0, a1 := otherAxes(axis)
	dst := make([]float64, out[0]*out[1]*out[2])
	lines := dims[a0] * dims[a1]
	parallel.For(workers, lines, func(_, from, to int) error {
		in := make([]float64, op.In)
		res := make([]float64, op.Out)
		for l := from; l < to; l++ {
			i0, i1 := l/dims[a1], l%dims[a1]
			base := i0*inStride[a0] + i1*inStride[a1]
			for t := range in {
				in[t] = src[base+t*inStride[axis]]
			}
			op.apply(in, res)
			base = i0*outStride[a0] + i1*outStride[a1]
			for t, v := range res {
				dst[base+t*outStride[axis]] = v
			}
		}
		return nil
	})
	return dst, out
}

func strides(dims [3]int) [3]int {
	return [3]int{dims[1] * dims[2], dims[2], 1}
}

func otherAxes(axis int) (int, int) {
	switch axis {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	}
	return 0, 1
}
