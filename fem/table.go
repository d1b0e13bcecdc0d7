package fem

import (
	"gonum.org/v1/gonum/integrate/quad"
)

// Table holds the 1-D inner products of the folded basis functions of one
// depth: Mass(i,k) = ∫φ_i φ_{i+k} and Stiffness(i,k) = ∫φ_i' φ_{i+k}' over [0,1].
type Table struct {
	Depth   int
	side    int
	support int
	mass    []float64
	stiff   []float64
}

// NewTable integrates the basis products of a depth cell by cell. Knots lie
// on cell boundaries so degree+1 Gauss-Legendre points are exact.
func NewTable(b Basis, depth int) *Table {
	side := 1 << depth
	n := b.Support()
	width := 2*n + 1
	t := &Table{
		Depth:   depth,
		side:    side,
		support: n,
		mass:    make([]float64, side*width),
		stiff:   make([]float64, side*width),
	}
	order := b.Degree() + 1
	xs := make([]float64, order)
	ws := make([]float64, order)
	var vals []Entry
	h := 1 / float64(side)
	for c := 0; c < side; c++ {
		quad.Legendre{}.FixedLocations(xs, ws, float64(c)*h, float64(c+1)*h)
		for q, x := range xs {
			vals = b.Values(vals, depth, x)
			for _, e0 := range vals {
				row := int(e0.Index) * width
				for _, e1 := range vals {
					k := int(e1.Index - e0.Index)
					t.mass[row+k+n] += ws[q] * e0.Value * e1.Value
					t.stiff[row+k+n] += ws[q] * e0.Deriv * e1.Deriv
				}
			}
		}
	}
	return t
}

// Mass returns ∫φ_i φ_{i+k}, or zero when either function lies outside the
// depth.
func (t *Table) Mass(i, k int) float64 {
	if i < 0 || i >= t.side || k < -t.support || k > t.support || i+k < 0 || i+k >= t.side {
		return 0
	}
	return t.mass[i*(2*t.support+1)+k+t.support]
}

// Stiffness returns ∫φ_i' φ_{i+k}'.
func (t *Table) Stiffness(i, k int) float64 {
	if i < 0 || i >= t.side || k < -t.support || k > t.support || i+k < 0 || i+k >= t.side {
		return 0
	}
	return t.stiff[i*(2*t.support+1)+k+t.support]
}

// Stiffness3 returns ∫∇φ_o·∇φ_{o+k} for the tensor product functions at
// offsets o and o+k.
func (t *Table) Stiffness3(o, k [3]int32) float64 {
	var m, s [3]float64
	for a := 0; a < 3; a++ {
		i, d := int(o[a]), int(k[a])
		m[a] = t.Mass(i, d)
		s[a] = t.Stiffness(i, d)
	}
	return s[0]*m[1]*m[2] + m[0]*s[1]*m[2] + m[0]*m[1]*s[2]
}
