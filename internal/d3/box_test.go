package d3

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestBoxInclude(t *testing.T) {
	bb := EmptyBox()
	for _, v := range []r3.Vec{{X: 1, Y: -2, Z: 3}, {X: -1, Y: 4, Z: 0}, {X: 0, Y: 0, Z: -5}} {
		bb = bb.Include(v)
	}
	want := Box{Min: r3.Vec{X: -1, Y: -2, Z: -5}, Max: r3.Vec{X: 1, Y: 4, Z: 3}}
	if bb != want {
		t.Errorf("got %+v, want %+v", bb, want)
	}
	if got := Max(bb.Size()); got != 8 {
		t.Errorf("long axis got %g, want 8", got)
	}
	if got := bb.Center(); got != (r3.Vec{X: 0, Y: 1, Z: -1}) {
		t.Errorf("center %v", got)
	}
	if got := EmptyBox().Extend(bb); got != bb {
		t.Errorf("extending empty box got %+v", got)
	}
	if !bb.IsFinite() {
		t.Error("box should be finite")
	}
	bb = bb.Include(r3.Vec{X: math.NaN()})
	bb = bb.Include(r3.Vec{Y: math.Inf(1)})
	if bb.IsFinite() {
		t.Error("box with infinite corner reported finite")
	}
}
