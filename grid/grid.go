// Package grid samples a coefficient field on a regular lattice over the
// unit cube.
package grid

import (
	"math"

	"github.com/pkg/errors"
	"github.com/soypat/poisson/fem"
)

// AutoDepth selects the depth of the evaluated field as the grid depth.
const AutoDepth = -1

// Options define the lattice of an evaluation.
type Options struct {
	// Depth G sets the lattice spacing 2^-G. AutoDepth uses the field depth.
	Depth int
	// Primal places 2^G+1 points per axis on cell corners instead of 2^G
	// points on cell centers.
	Primal bool
}

// DefaultOptions returns the dual lattice at the field depth.
func DefaultOptions() Options { return Options{Depth: AutoDepth} }

// Resolve returns opt with AutoDepth replaced by fieldDepth.
func (opt Options) Resolve(fieldDepth int) (Options, error) {
	if opt.Depth == AutoDepth {
		opt.Depth = fieldDepth
	}
	if opt.Depth < 0 || opt.Depth > 30 {
		return opt, errors.Errorf("grid depth %d out of range", opt.Depth)
	}
	return opt, nil
}

// Resolution returns the number of points per axis of a resolved lattice.
func (opt Options) Resolution() int {
	res := 1 << opt.Depth
	if opt.Primal {
		res++
	}
	return res
}

// Coordinates returns the normalized positions of the lattice points along
// one axis.
func (opt Options) Coordinates() []float64 {
	res := opt.Resolution()
	h := math.Ldexp(1, -opt.Depth)
	xs := make([]float64, res)
	for i := range xs {
		if opt.Primal {
			xs[i] = float64(i) * h
		} else {
			xs[i] = (float64(i) + 0.5) * h
		}
	}
	return xs
}

// Evaluate samples f at the lattice of opt and subtracts iso from every
// value. Values are stored at (i*res+j)*res+k for the point with lattice
// coordinates (i,j,k), x slowest. Evaluation is separable: one pass per axis.
func Evaluate(f *fem.Field, b fem.Basis, opt Options, iso float64, workers int) ([]float32, int, error) {
	opt, err := opt.Resolve(f.Depth)
	if err != nil {
		return nil, 0, err
	}
	op := fem.EvaluationOperator(b, f.Depth, opt.Coordinates())
	side := f.Side()
	vals, dims := fem.ApplySeparable(f.Coeff, [3]int{side, side, side}, [3]*fem.LineOperator{op, op, op}, workers)
	res := dims[0]
	out := make([]float32, len(vals))
	for i, v := range vals {
		out[i] = float32(v - iso)
	}
	return out, res, nil
}
