// Package fem implements the B-spline finite element space over the octree
// and assembles the per-depth screened Poisson systems.
//
// Each depth d cell with offset i on an axis carries the function
// B(x*2^d - i - 1/2) where B is the centered cardinal B-spline of the basis
// degree. Functions centered outside [0,1] are folded back onto their mirror
// images, which gives the space reflective (Neumann) boundary conditions.
package fem

import (
	"math"

	"github.com/pkg/errors"
)

// Entry is the value and derivative of one folded 1-D basis function at a point.
type Entry struct {
	Index int32
	Value float64
	Deriv float64
}

// Basis describes an even degree B-spline basis.
type Basis struct {
	degree int
	// refine holds the two-scale coefficients C(n+1,k)/2^n.
	refine []float64
}

// NewBasis returns the basis of the given degree. Only even degrees keep
// knots on cell boundaries, 2 and 4 are supported.
func NewBasis(degree int) (Basis, error) {
	if degree != 2 && degree != 4 {
		return Basis{}, errors.Errorf("unsupported basis degree %d, want 2 or 4", degree)
	}
	b := Basis{degree: degree, refine: make([]float64, degree+2)}
	scale := math.Ldexp(1, -degree)
	for k := range b.refine {
		b.refine[k] = binomial(degree+1, k) * scale
	}
	return b, nil
}

// Degree returns the polynomial degree of the basis.
func (b Basis) Degree() int { return b.degree }

// Radius returns the number of cells on each side of a cell whose functions
// are non-zero inside it.
func (b Basis) Radius() int { return b.degree / 2 }

// Support returns the maximum index distance of two overlapping functions.
func (b Basis) Support() int { return b.degree }

// Values appends to dst the folded basis functions of the given depth that
// are non-zero at x in [0,1]. Folded images sharing an index are summed.
func (b Basis) Values(dst []Entry, depth int, x float64) []Entry {
	dst = dst[:0]
	side := int64(1) << depth
	n := float64(side)
	c := int64(math.Floor(x * n))
	if c < 0 {
		c = 0
	} else if c >= side {
		c = side - 1
	}
	r := int64(b.Radius())
	for j := c - r; j <= c+r; j++ {
		t := x*n - float64(j) - 0.5
		v := bspline(b.degree, t)
		dv := n * (bspline(b.degree-1, t+0.5) - bspline(b.degree-1, t-0.5))
		if v == 0 && dv == 0 {
			continue
		}
		idx := int32(fold(j, side))
		merged := false
		for i := range dst {
			if dst[i].Index == idx {
				dst[i].Value += v
				dst[i].Deriv += dv
				merged = true
				break
			}
		}
		if !merged {
			dst = append(dst, Entry{Index: idx, Value: v, Deriv: dv})
		}
	}
	return dst
}

// fold maps a virtual function index onto [0, side) by reflection about the
// domain boundaries.
func fold(j, side int64) int64 {
	for j < 0 || j >= side {
		if j < 0 {
			j = -1 - j
		} else {
			j = 2*side - 1 - j
		}
	}
	return j
}

// bspline evaluates the centered cardinal B-spline of degree n, supported on
// (-(n+1)/2, (n+1)/2), using its truncated power form.
func bspline(n int, t float64) float64 {
	half := float64(n+1) / 2
	if t <= -half || t >= half {
		return 0
	}
	// The spline is even. Evaluating on the left half keeps the sum short.
	t = -math.Abs(t)
	var sum float64
	for k := 0; k <= n+1; k++ {
		u := t + half - float64(k)
		if u <= 0 {
			break
		}
		term := binomial(n+1, k) * math.Pow(u, float64(n))
		if k%2 == 1 {
			term = -term
		}
		sum += term
	}
	return sum / factorial(n)
}

func binomial(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return r
}

func factorial(n int) float64 {
	r := 1.0
	for i := 2; i <= n; i++ {
		r *= float64(i)
	}
	return r
}
