package fem

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Field is the dense coefficient array of a function in the depth basis.
// Coefficients are stored row major by cell offset, x slowest.
type Field struct {
	Depth int
	Coeff []float64
}

// NewField returns the zero function at depth.
func NewField(depth int) *Field {
	side := 1 << depth
	return &Field{Depth: depth, Coeff: make([]float64, side*side*side)}
}

// Side returns the number of coefficients per axis.
func (f *Field) Side() int { return 1 << f.Depth }

// Index returns the position of the coefficient at offset off.
func (f *Field) Index(off [3]int32) int {
	side := f.Side()
	return (int(off[0])*side+int(off[1]))*side + int(off[2])
}

// Prolong returns the same function expressed at depth+1.
func (f *Field) Prolong(b Basis, workers int) *Field {
	op := ProlongationOperator(b, f.Depth)
	side := f.Side()
	coeff, _ := ApplySeparable(f.Coeff, [3]int{side, side, side}, [3]*LineOperator{op, op, op}, workers)
	return &Field{Depth: f.Depth + 1, Coeff: coeff}
}

// Value evaluates the field at u in the unit cube. Coordinates outside the
// cube are clamped to it.
func (f *Field) Value(b Basis, u r3.Vec) float64 {
	var vx, vy, vz []Entry
	vx = b.Values(vx, f.Depth, clampUnit(u.X))
	vy = b.Values(vy, f.Depth, clampUnit(u.Y))
	vz = b.Values(vz, f.Depth, clampUnit(u.Z))
	side := f.Side()
	var sum float64
	for _, ex := range vx {
		for _, ey := range vy {
			row := (int(ex.Index)*side + int(ey.Index)) * side
			w := ex.Value * ey.Value
			for _, ez := range vz {
				sum += w * ez.Value * f.Coeff[row+int(ez.Index)]
			}
		}
	}
	return sum
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
