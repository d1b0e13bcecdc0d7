package poisson

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/soypat/glgl/math/ms3"
	"github.com/soypat/poisson/eval"
	"github.com/soypat/poisson/grid"
	"github.com/soypat/poisson/octree"
	"github.com/soypat/poisson/sample"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fibonacciSphere returns n points spread evenly over the sphere of radius r
// centered at c, with outward normals, as flat N×3 buffers.
func fibonacciSphere(n int, c ms3.Vec, r float32) (points, normals []float32) {
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := 0; i < n; i++ {
		y := 1 - 2*(float64(i)+0.5)/float64(n)
		rad := math.Sqrt(1 - y*y)
		theta := golden * float64(i)
		nx, ny, nz := float32(rad*math.Cos(theta)), float32(y), float32(rad*math.Sin(theta))
		points = append(points, c.X+r*nx, c.Y+r*ny, c.Z+r*nz)
		normals = append(normals, nx, ny, nz)
	}
	return points, normals
}

func sphereArrays(n int) (Array, Array) {
	p, nrm := fibonacciSphere(n, ms3.Vec{X: 1, Y: -2, Z: 0.5}, 1.5)
	return NewArray(p, n, 3), NewArray(nrm, n, 3)
}

func TestReconstructGridShape(t *testing.T) {
	points, normals := sphereArrays(150)
	prevRes := 0
	for depth := 1; depth <= 4; depth++ {
		g, err := ReconstructGrid(points, normals, depth)
		if err != nil {
			t.Fatalf("depth %d: %v", depth, err)
		}
		if g.Res != 1<<depth {
			t.Errorf("depth %d: res %d, want %d", depth, g.Res, 1<<depth)
		}
		if len(g.Values) != g.Res*g.Res*g.Res {
			t.Errorf("depth %d: %d values for res %d", depth, len(g.Values), g.Res)
		}
		if prevRes != 0 && g.Res <= prevRes {
			t.Errorf("resolution not increasing with depth: %d after %d", g.Res, prevRes)
		}
		prevRes = g.Res
	}
}

func TestReconstructGridDeterministic(t *testing.T) {
	points, normals := sphereArrays(200)
	a, err := ReconstructGrid(points, normals, 4)
	if err != nil {
		t.Fatal(err)
	}
	p := DefaultParameters(4)
	p.Threads = 1
	s, err := sample.NewArrayStream(points.Data, normals.Data)
	if err != nil {
		t.Fatal(err)
	}
	im, err := Reconstruct(s, p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := im.Grid(grid.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			t.Fatalf("value %d differs: %g != %g", i, a.Values[i], b.Values[i])
		}
	}
}

func TestReconstructGridPermutationInvariant(t *testing.T) {
	const n = 200
	points, normals := sphereArrays(n)
	perm := rand.New(rand.NewSource(1)).Perm(n)
	pp := make([]float32, 0, 3*n)
	nn := make([]float32, 0, 3*n)
	for _, i := range perm {
		pp = append(pp, points.Data[3*i:3*i+3]...)
		nn = append(nn, normals.Data[3*i:3*i+3]...)
	}
	a, err := ReconstructGrid(points, normals, 4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ReconstructGrid(NewArray(pp, n, 3), NewArray(nn, n, 3), 4)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Values {
		diff := math.Abs(float64(a.Values[i] - b.Values[i]))
		if diff > 1e-5*(1+math.Abs(float64(a.Values[i]))) {
			t.Fatalf("value %d differs: %g != %g", i, a.Values[i], b.Values[i])
		}
	}
}

func TestReconstructGridInvalid(t *testing.T) {
	points, normals := sphereArrays(10)
	for _, test := range []struct {
		name            string
		points, normals Array
		depth           int
		want            error
	}{
		{name: "depth zero", points: points, normals: normals, depth: 0, want: ErrInvalidInput},
		{name: "negative depth", points: points, normals: normals, depth: -3, want: ErrInvalidInput},
		{name: "one dimensional", points: NewArray(points.Data, 30), normals: normals, depth: 3, want: ErrInvalidInput},
		{name: "two columns", points: NewArray(points.Data[:20], 10, 2), normals: normals, depth: 3, want: ErrInvalidInput},
		{name: "row mismatch", points: NewArray(points.Data[:27], 9, 3), normals: normals, depth: 3, want: ErrInvalidInput},
		{name: "short data", points: NewArray(points.Data[:27], 10, 3), normals: normals, depth: 3, want: ErrInvalidInput},
		{name: "no samples", points: NewArray(nil, 0, 3), normals: NewArray(nil, 0, 3), depth: 3, want: ErrInsufficientData},
		{
			name:    "nan position",
			points:  NewArray([]float32{float32(math.NaN()), 0, 0, 1, 1, 1}, 2, 3),
			normals: NewArray([]float32{0, 0, 1, 0, 0, 1}, 2, 3),
			depth:   3,
			want:    ErrInsufficientData,
		},
		{
			name:    "nan normal",
			points:  NewArray([]float32{0, 0, 0, 1, 1, 1}, 2, 3),
			normals: NewArray([]float32{0, 0, float32(math.Inf(1)), 0, 0, 1}, 2, 3),
			depth:   3,
			want:    ErrInvalidInput,
		},
		{name: "too deep", points: points, normals: normals, depth: 21, want: ErrAllocation},
	} {
		g, err := ReconstructGrid(test.points, test.normals, test.depth)
		if !errors.Is(err, test.want) {
			t.Errorf("%s: got error %v, want %v", test.name, err, test.want)
		}
		if g != nil {
			t.Errorf("%s: got grid alongside error", test.name)
		}
	}
}

func TestInvalidInputCause(t *testing.T) {
	points := NewArray([]float32{0, 0, 0, 1, 1, 1}, 2, 3)
	normals := NewArray([]float32{0, 0, float32(math.Inf(-1)), 0, 0, 1}, 2, 3)
	_, err := ReconstructGrid(points, normals, 3)
	if !errors.Is(err, ErrInvalidInput) || !errors.Is(err, octree.ErrInvalidSample) {
		t.Errorf("got %v, want invalid input caused by an invalid sample", err)
	}
	s := sample.NewSliceStream(nil)
	p := DefaultParameters(3)
	p.Degree = 3
	if _, err := Reconstruct(s, p); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("degree 3: got %v", err)
	}
}

func TestSphereSign(t *testing.T) {
	p, nrm := fibonacciSphere(500, ms3.Vec{}, 1)
	g, err := ReconstructGrid(NewArray(p, 500, 3), NewArray(nrm, 500, 3), 6)
	if err != nil {
		t.Fatal(err)
	}
	if g.Res != 64 {
		t.Fatalf("res %d", g.Res)
	}
	mid := g.Res / 2
	if v := g.At(mid, mid, mid); !(v < 0) {
		t.Errorf("center value %g, want negative", v)
	}
	last := g.Res - 1
	for _, c := range [][3]int{{0, 0, 0}, {last, 0, 0}, {0, last, 0}, {0, 0, last}, {last, last, last}} {
		if v := g.At(c[0], c[1], c[2]); !(v > 0) {
			t.Errorf("corner %v value %g, want positive", c, v)
		}
	}
	center := g.Position(mid, mid, mid)
	if ms3.Norm(center) > 0.1 {
		t.Errorf("center point at %v", center)
	}
}

func TestDegenerateSamples(t *testing.T) {
	for _, test := range []struct {
		name            string
		points, normals []float32
	}{
		{name: "single", points: []float32{1, 2, 3}, normals: []float32{0, 0, 1}},
		{name: "coincident", points: []float32{1, 1, 1, 1, 1, 1, 1, 1, 1}, normals: []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}},
		{name: "colinear", points: []float32{0, 0, 0, 1, 0, 0, 2, 0, 0, 3, 0, 0}, normals: []float32{0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0}},
		{name: "zero normals", points: []float32{0, 0, 0, 1, 1, 0, 0, 1, 1}, normals: make([]float32, 9)},
	} {
		n := len(test.points) / 3
		g, err := ReconstructGrid(NewArray(test.points, n, 3), NewArray(test.normals, n, 3), 3)
		if err != nil {
			t.Errorf("%s: %v", test.name, err)
			continue
		}
		for _, v := range g.Values {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("%s: non-finite value", test.name)
			}
		}
	}
}

func TestPrimalGrid(t *testing.T) {
	points, normals := sphereArrays(100)
	s, _ := sample.NewArrayStream(points.Data, normals.Data)
	im, err := Reconstruct(s, DefaultParameters(3))
	if err != nil {
		t.Fatal(err)
	}
	g, err := im.Grid(grid.Options{Depth: grid.AutoDepth, Primal: true})
	if err != nil {
		t.Fatal(err)
	}
	if g.Res != 9 || !g.Primal {
		t.Fatalf("res %d primal %v", g.Res, g.Primal)
	}
	box := im.Bounds()
	if ms3.Norm(ms3.Sub(g.Origin, box.Min)) > 1e-5 {
		t.Errorf("primal origin %v, want %v", g.Origin, box.Min)
	}
	if ms3.Norm(ms3.Sub(g.Position(8, 8, 8), box.Max)) > 1e-4 {
		t.Errorf("primal end %v, want %v", g.Position(8, 8, 8), box.Max)
	}
}

func TestImplicitEvaluateMatchesGrid(t *testing.T) {
	points, normals := sphereArrays(120)
	s, _ := sample.NewArrayStream(points.Data, normals.Data)
	im, err := Reconstruct(s, DefaultParameters(4))
	if err != nil {
		t.Fatal(err)
	}
	g, err := im.Grid(grid.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	var pos []ms3.Vec
	var want []float32
	for _, ijk := range [][3]int{{0, 0, 0}, {3, 7, 11}, {8, 8, 8}, {15, 2, 9}} {
		pos = append(pos, g.Position(ijk[0], ijk[1], ijk[2]))
		want = append(want, g.At(ijk[0], ijk[1], ijk[2]))
	}
	dist := make([]float32, len(pos))
	if err := im.Evaluate(pos, dist, nil); err != nil {
		t.Fatal(err)
	}
	for i := range dist {
		if math.Abs(float64(dist[i]-want[i])) > 1e-4*(1+math.Abs(float64(want[i]))) {
			t.Errorf("point %v: evaluate %g, grid %g", pos[i], dist[i], want[i])
		}
	}
	if err := im.Evaluate(pos, dist[:1], nil); err == nil {
		t.Error("expected length mismatch error")
	}

	vp := new(eval.VecPool)
	pooled := make([]float32, len(pos))
	for run := 0; run < 2; run++ {
		if err := im.Evaluate(pos, pooled, vp); err != nil {
			t.Fatal(err)
		}
		if err := vp.AssertAllReleased(); err != nil {
			t.Fatal(err)
		}
		for i := range pooled {
			if pooled[i] != dist[i] {
				t.Errorf("run %d point %d: pooled %g, unpooled %g", run, i, pooled[i], dist[i])
			}
		}
	}
	if err := im.Evaluate(pos, pooled, "scratch"); err == nil {
		t.Error("expected error for user data without a VecPool")
	}
}

func TestSolverKinds(t *testing.T) {
	points, normals := sphereArrays(150)
	var grids []*Grid
	for _, kind := range []SolverKind{SolverCG, SolverGaussSeidel} {
		s, _ := sample.NewArrayStream(points.Data, normals.Data)
		p := DefaultParameters(4)
		p.Solver = kind
		p.Iterations = 500
		p.Logger = zaptest.NewLogger(t)
		im, err := Reconstruct(s, p)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		g, err := im.Grid(grid.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		grids = append(grids, g)
	}
	mid := grids[0].Res / 2
	for _, g := range grids {
		if !(g.At(mid, mid, mid) < 0) || !(g.At(0, 0, 0) > 0) {
			t.Errorf("unexpected signs: center %g corner %g", g.At(mid, mid, mid), g.At(0, 0, 0))
		}
	}
}

func TestReconstructLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	points, normals := sphereArrays(80)
	s, _ := sample.NewArrayStream(points.Data, normals.Data)
	p := DefaultParameters(3)
	p.Logger = zap.New(core)
	im, err := Reconstruct(s, p)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := im.Grid(grid.DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if n := logs.FilterMessage("octree built").Len(); n != 1 {
		t.Errorf("got %d octree messages", n)
	}
	solved := logs.FilterMessage("depth solved").Len() + logs.FilterMessage("depth reached iteration limit").Len()
	if solved != 4 {
		t.Errorf("got %d depth messages, want 4", solved)
	}
	if n := logs.FilterMessage("grid evaluated").Len(); n != 1 {
		t.Errorf("got %d grid messages", n)
	}
}

func TestAllocationLimit(t *testing.T) {
	points, normals := sphereArrays(50)
	s, _ := sample.NewArrayStream(points.Data, normals.Data)
	p := DefaultParameters(5)
	p.MaxMemory = 1 << 20
	_, err := Reconstruct(s, p)
	if !errors.Is(err, ErrAllocation) {
		t.Fatalf("got %v, want allocation error", err)
	}
	p = DefaultParameters(3)
	p.MaxMemory = 1 << 20
	im, err := Reconstruct(s, p)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := im.Grid(grid.Options{Depth: 7}); !errors.Is(err, ErrAllocation) {
		t.Errorf("got %v, want allocation error for large grid", err)
	}
}

func TestLatticeMatchesPrimalGrid(t *testing.T) {
	points, normals := sphereArrays(100)
	s, _ := sample.NewArrayStream(points.Data, normals.Data)
	im, err := Reconstruct(s, DefaultParameters(3))
	if err != nil {
		t.Fatal(err)
	}
	g, err := im.Grid(grid.Options{Depth: grid.AutoDepth, Primal: true})
	if err != nil {
		t.Fatal(err)
	}
	vp := new(eval.VecPool)
	vals, err := eval.Lattice(im, g.Res, vp)
	if err != nil {
		t.Fatal(err)
	}
	if err := vp.AssertAllReleased(); err != nil {
		t.Fatal(err)
	}
	for i := range vals {
		if math.Abs(float64(vals[i]-g.Values[i])) > 1e-4*(1+math.Abs(float64(g.Values[i]))) {
			t.Fatalf("value %d: lattice %g, grid %g", i, vals[i], g.Values[i])
		}
	}
}
