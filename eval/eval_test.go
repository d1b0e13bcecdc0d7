package eval

import (
	"math"
	"testing"

	"github.com/soypat/glgl/math/ms3"
)

type sphere struct{ r float32 }

func (s sphere) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	vp, err := GetVecPool(userData)
	if err != nil {
		return err
	}
	scratch := vp.V3.Acquire(len(pos))
	for i, p := range pos {
		scratch[i] = ms3.Scale(1/s.r, p)
		dist[i] = s.r * (ms3.Norm(scratch[i]) - 1)
	}
	return vp.V3.Release(scratch)
}

func (s sphere) Bounds() ms3.Box {
	return ms3.Box{Min: ms3.Vec{X: -2, Y: -2, Z: -2}, Max: ms3.Vec{X: 2, Y: 2, Z: 2}}
}

func TestLattice(t *testing.T) {
	var vp VecPool
	const res = 5
	vals, err := Lattice(sphere{r: 1}, res, &vp)
	if err != nil {
		t.Fatal(err)
	}
	if err := vp.AssertAllReleased(); err != nil {
		t.Fatal(err)
	}
	if len(vals) != res*res*res {
		t.Fatalf("got %d values", len(vals))
	}
	// Point (2,2,2) is the center, (4,0,0) lies at (2,-2,-2).
	if got := vals[(2*res+2)*res+2]; got != -1 {
		t.Errorf("center value %g", got)
	}
	want := float32(math.Sqrt(12)) - 1
	if got := vals[(4*res+0)*res+0]; math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("corner value %g, want %g", got, want)
	}
	if _, err := Lattice(sphere{r: 1}, 1, nil); err == nil {
		t.Error("expected resolution error")
	}
}

func TestBufPool(t *testing.T) {
	var bp bufPool[float32]
	a := bp.Acquire(4)
	b := bp.Acquire(2)
	if &a[0] == &b[0] {
		t.Fatal("acquired the same buffer twice")
	}
	if err := bp.assertAllReleased(); err == nil {
		t.Error("expected leak report")
	}
	if err := bp.Release(a); err != nil {
		t.Fatal(err)
	}
	if err := bp.Release(a); err == nil {
		t.Error("expected double release error")
	}
	if c := bp.Acquire(3); &c[0] != &a[0] {
		t.Error("released buffer not reused")
	}
	if err := bp.Release(make([]float32, 1)); err == nil {
		t.Error("expected foreign buffer error")
	}
}

func TestGetVecPool(t *testing.T) {
	if _, err := GetVecPool(42); err == nil {
		t.Error("expected error for wrong user data")
	}
	vp := new(VecPool)
	got, err := GetVecPool(vp)
	if err != nil || got != vp {
		t.Errorf("got %v, %v", got, err)
	}
}
