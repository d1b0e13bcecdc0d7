package solver

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrDiverged is returned when an iteration produces non-finite values or
// the matrix is found not to be positive definite.
var ErrDiverged = errors.New("solver diverged")

// Options control iterative solves.
type Options struct {
	// MaxIterations bounds the number of iterations. Exhausting it is not an error.
	MaxIterations int
	// Tolerance is the target residual norm relative to the right hand side norm.
	Tolerance float64
	Workers   int
}

// Result describes a finished solve.
type Result struct {
	Iterations int
	// Residual is the final relative residual norm.
	Residual  float64
	Converged bool
}

// Method solves a*x = b, using x as the initial guess.
type Method func(a *CSR, b, x []float64, opt Options) (Result, error)

// CG solves a*x = b by the Jacobi preconditioned conjugate gradient method.
func CG(a *CSR, b, x []float64, opt Options) (Result, error) {
	if err := checkDims(a, b, x); err != nil {
		return Result{}, err
	}
	n := a.N
	bnorm := floats.Norm(b, 2)
	if !isFinite(bnorm) {
		return Result{}, errors.Wrap(ErrDiverged, "non-finite right hand side")
	}
	if bnorm == 0 {
		for i := range x {
			x[i] = 0
		}
		return Result{Converged: true}, nil
	}
	inv := jacobi(a)
	r := make([]float64, n)
	z := make([]float64, n)
	p := make([]float64, n)
	ap := make([]float64, n)

	a.MulVec(ap, x, opt.Workers)
	floats.SubTo(r, b, ap)
	res := floats.Norm(r, 2) / bnorm
	if res <= opt.Tolerance {
		return Result{Residual: res, Converged: true}, nil
	}
	floats.MulTo(z, inv, r)
	copy(p, z)
	rz := floats.Dot(r, z)
	var it int
	for it = 0; it < opt.MaxIterations; it++ {
		a.MulVec(ap, p, opt.Workers)
		pap := floats.Dot(p, ap)
		if !isFinite(pap) || pap <= 0 {
			return Result{Iterations: it}, errors.Wrapf(ErrDiverged, "curvature %g at iteration %d", pap, it)
		}
		alpha := rz / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)
		res = floats.Norm(r, 2) / bnorm
		if !isFinite(res) {
			return Result{Iterations: it + 1}, errors.Wrapf(ErrDiverged, "residual %g at iteration %d", res, it+1)
		}
		if res <= opt.Tolerance {
			return Result{Iterations: it + 1, Residual: res, Converged: true}, nil
		}
		floats.MulTo(z, inv, r)
		rzNext := floats.Dot(r, z)
		floats.AddScaledTo(p, z, rzNext/rz, p)
		rz = rzNext
	}
	return Result{Iterations: it, Residual: res}, checkSolution(x)
}

// GaussSeidel solves a*x = b with symmetric Gauss-Seidel sweeps. Each
// iteration is a forward and a backward sweep.
func GaussSeidel(a *CSR, b, x []float64, opt Options) (Result, error) {
	if err := checkDims(a, b, x); err != nil {
		return Result{}, err
	}
	bnorm := floats.Norm(b, 2)
	if !isFinite(bnorm) {
		return Result{}, errors.Wrap(ErrDiverged, "non-finite right hand side")
	}
	if bnorm == 0 {
		for i := range x {
			x[i] = 0
		}
		return Result{Converged: true}, nil
	}
	diag := a.Diagonal()
	for i, d := range diag {
		if !(d > 0) {
			return Result{}, errors.Wrapf(ErrDiverged, "non-positive diagonal %g in row %d", d, i)
		}
	}
	r := make([]float64, a.N)
	var res float64
	var it int
	for it = 0; it < opt.MaxIterations; it++ {
		for i := 0; i < a.N; i++ {
			relax(a, b, x, diag, i)
		}
		for i := a.N - 1; i >= 0; i-- {
			relax(a, b, x, diag, i)
		}
		a.MulVec(r, x, opt.Workers)
		floats.Sub(r, b)
		res = floats.Norm(r, 2) / bnorm
		if !isFinite(res) {
			return Result{Iterations: it + 1}, errors.Wrapf(ErrDiverged, "residual %g at iteration %d", res, it+1)
		}
		if res <= opt.Tolerance {
			return Result{Iterations: it + 1, Residual: res, Converged: true}, nil
		}
	}
	return Result{Iterations: it, Residual: res}, checkSolution(x)
}

func relax(a *CSR, b, x, diag []float64, i int) {
	sum := b[i]
	for p := a.RowPtr[i]; p < a.RowPtr[i+1]; p++ {
		if j := int(a.Col[p]); j != i {
			sum -= a.Val[p] * x[j]
		}
	}
	x[i] = sum / diag[i]
}

func jacobi(a *CSR) []float64 {
	inv := a.Diagonal()
	for i, d := range inv {
		if d > 0 {
			inv[i] = 1 / d
		} else {
			inv[i] = 1
		}
	}
	return inv
}

func checkDims(a *CSR, b, x []float64) error {
	if len(b) != a.N || len(x) != a.N {
		return errors.Errorf("dimension mismatch: matrix %d, rhs %d, solution %d", a.N, len(b), len(x))
	}
	return nil
}

func checkSolution(x []float64) error {
	for i, v := range x {
		if !isFinite(v) {
			return errors.Wrapf(ErrDiverged, "non-finite coefficient %d", i)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
