package poisson

import (
	"github.com/soypat/glgl/math/ms3"
)

// Grid is a dense cube of implicit function values. The function is
// negative inside the reconstructed surface and positive outside, its zero
// level set being the surface.
//
// Values[(i*Res+j)*Res+k] holds the value at lattice point (i,j,k) which
// lies at world position Origin + Spacing*(i,j,k). This matches C order
// indexing grid[i, j, k] with i along x.
type Grid struct {
	Res    int
	Values []float32
	// Primal grids sample cell corners, dual grids sample cell centers.
	Primal  bool
	Origin  ms3.Vec
	Spacing float32
	// IsoValue is the mean function value at the samples, already
	// subtracted from Values.
	IsoValue float32
}

// Index returns the position of lattice point (i,j,k) in Values.
func (g *Grid) Index(i, j, k int) int {
	return (i*g.Res+j)*g.Res + k
}

// At returns the value at lattice point (i,j,k).
func (g *Grid) At(i, j, k int) float32 {
	return g.Values[g.Index(i, j, k)]
}

// Position returns the world position of lattice point (i,j,k).
func (g *Grid) Position(i, j, k int) ms3.Vec {
	return ms3.Add(g.Origin, ms3.Scale(g.Spacing, ms3.Vec{X: float32(i), Y: float32(j), Z: float32(k)}))
}

// Bounds returns the box spanned by the lattice points.
func (g *Grid) Bounds() ms3.Box {
	last := g.Res - 1
	return ms3.Box{Min: g.Origin, Max: g.Position(last, last, last)}
}
