package d3

import (
	"math"

	"github.com/soypat/glgl/math/ms3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Box is a 3d bounding box accumulated in float64 precision.
type Box r3.Box

// EmptyBox returns an inverted box that any call to Include will replace.
func EmptyBox() Box {
	return Box{Min: Elem(math.Inf(1)), Max: Elem(math.Inf(-1))}
}

// Extend returns a box enclosing two 3d boxes.
func (a Box) Extend(b Box) Box {
	return Box{
		Min: MinElem(a.Min, b.Min),
		Max: MaxElem(a.Max, b.Max),
	}
}

// Include enlarges a 3d box to include a point.
func (a Box) Include(v r3.Vec) Box {
	return Box{
		Min: MinElem(a.Min, v),
		Max: MaxElem(a.Max, v),
	}
}

// Size returns the size of a 3d box.
func (a Box) Size() r3.Vec {
	return r3.Sub(a.Max, a.Min)
}

// Center returns the center of a 3d box.
func (a Box) Center() r3.Vec {
	return r3.Add(a.Min, r3.Scale(0.5, a.Size()))
}

// IsFinite reports whether both box corners have finite components.
func (a Box) IsFinite() bool {
	return IsFinite(a.Min) && IsFinite(a.Max)
}

// MS3 converts the box to float32 precision.
func (a Box) MS3() ms3.Box {
	return ms3.Box{Min: ToMS3(a.Min), Max: ToMS3(a.Max)}
}
