package octree

import (
	"math"

	"github.com/soypat/poisson/internal/parallel"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// estimateWeights assigns every point the area of the disk reaching its
// k-th nearest neighbor divided by k. Weights are clamped below by a
// hundredth of a finest cell face so coincident samples stay usable.
func (t *Tree) estimateWeights(k, workers int) {
	n := len(t.Points)
	if n < 2 {
		for i := range t.Points {
			t.Points[i].Weight = 1
		}
		return
	}
	if k > n-1 {
		k = n - 1
	}
	h := 1 / float64(int64(1)<<t.Depth)
	minWeight := 1e-2 * h * h

	pts := make(kdtree.Points, n)
	for i, p := range t.Points {
		pts[i] = kdtree.Point{p.Position.X, p.Position.Y, p.Position.Z}
	}
	// New reorders pts so queries are built from t.Points.
	kd := kdtree.New(pts, false)
	parallel.For(workers, n, func(_, from, to int) error {
		for i := from; i < to; i++ {
			p := t.Points[i].Position
			keep := kdtree.NewNKeeper(k + 1)
			kd.NearestSet(keep, kdtree.Point{p.X, p.Y, p.Z})
			var d2 float64
			for _, c := range keep.Heap {
				if c.Comparable == nil {
					continue
				}
				d2 = math.Max(d2, c.Dist)
			}
			w := math.Pi * d2 / float64(k)
			if w < minWeight {
				w = minWeight
			}
			t.Points[i].Weight = w
		}
		return nil
	})
}
