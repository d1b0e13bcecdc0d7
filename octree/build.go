package octree

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/soypat/poisson/internal/d3"
	"github.com/soypat/poisson/internal/parallel"
	"github.com/soypat/poisson/sample"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrInsufficientData is returned when the samples do not span a usable volume.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidSample is returned for samples that cannot be placed in the tree.
	ErrInvalidSample = errors.New("invalid sample")
	// ErrInconsistentStream is returned when a stream yields a different
	// sample count after being reset.
	ErrInconsistentStream = errors.New("stream changed between passes")
)

// minRelativeExtent bounds the extent of a degenerate sample set relative
// to the magnitude of its coordinates.
const minRelativeExtent = 1e-5

// Config controls octree construction.
type Config struct {
	// Depth is the finest depth of the tree, in [1, MaxDepth].
	Depth int
	// ScaleFactor pads the bounding cube of the samples. Must be at least 1.
	ScaleFactor float64
	// Radius is the number of neighbor cells refined around every occupied
	// cell. It must cover the support of the basis functions.
	Radius int
	// DensityNeighbors is the neighbor count used for sample area weights.
	DensityNeighbors int
	// Workers bounds concurrency. Values below one select GOMAXPROCS.
	Workers int
}

func (cfg Config) validate() error {
	switch {
	case cfg.Depth < 1 || cfg.Depth > MaxDepth:
		return errors.Errorf("depth %d out of range [1, %d]", cfg.Depth, MaxDepth)
	case !(cfg.ScaleFactor >= 1) || math.IsInf(cfg.ScaleFactor, 0):
		return errors.Errorf("scale factor %g must be finite and at least 1", cfg.ScaleFactor)
	case cfg.Radius < 0:
		return errors.Errorf("negative refinement radius %d", cfg.Radius)
	case cfg.DensityNeighbors < 1:
		return errors.Errorf("density neighbors %d must be positive", cfg.DensityNeighbors)
	}
	return nil
}

// Build reads s twice and returns the octree over its samples. The first
// pass computes the bounding volume, the second loads the normalized samples.
// The resulting tree does not depend on the order in which s yields samples.
func Build(s sample.Stream, cfg Config) (*Tree, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	workers := parallel.Workers(cfg.Workers)

	bounds, count, err := scanBounds(s, workers)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errors.Wrap(ErrInsufficientData, "no samples")
	}
	if !bounds.IsFinite() {
		return nil, errors.Wrap(ErrInsufficientData, "non-finite sample coordinates")
	}
	tf, err := newTransform(bounds, cfg.ScaleFactor)
	if err != nil {
		return nil, err
	}

	points, err := loadPoints(s, workers, tf, cfg.Depth)
	if err != nil {
		return nil, err
	}
	if len(points) != count {
		return nil, errors.Wrapf(ErrInconsistentStream, "read %d samples, expected %d", len(points), count)
	}
	sort.Slice(points, func(i, j int) bool { return lessPoint(&points[i], &points[j]) })

	t := &Tree{
		Points:    points,
		Depth:     cfg.Depth,
		Transform: tf,
		Radius:    cfg.Radius,
	}
	if err := t.refine(cfg.Radius); err != nil {
		return nil, err
	}
	t.estimateWeights(cfg.DensityNeighbors, workers)
	return t, nil
}

func scanBounds(s sample.Stream, workers int) (d3.Box, int, error) {
	s.Reset()
	boxes := make([]d3.Box, workers)
	counts := make([]int, workers)
	err := parallel.Run(workers, func(w int) error {
		bb := d3.EmptyBox()
		n := 0
		for {
			smp, ok := s.Read(w)
			if !ok {
				break
			}
			p := d3.FromMS3(smp.Position)
			if !d3.IsFinite(p) {
				// Poison the box so the caller reports non-finite bounds.
				bb.Min.X = math.NaN()
			} else {
				bb = bb.Include(p)
			}
			n++
		}
		boxes[w] = bb
		counts[w] = n
		return nil
	})
	if err == nil {
		err = sample.Err(s)
	}
	if err != nil {
		return d3.Box{}, 0, errors.Wrap(err, "reading samples")
	}
	bb := d3.EmptyBox()
	total := 0
	for w := range boxes {
		total += counts[w]
		if counts[w] == 0 {
			continue
		}
		if !boxes[w].IsFinite() {
			return boxes[w], total, nil
		}
		bb = bb.Extend(boxes[w])
	}
	return bb, total, nil
}

func newTransform(bb d3.Box, scaleFactor float64) (Transform, error) {
	extent := d3.Max(bb.Size())
	magnitude := d3.Max(d3.MaxElem(d3.AbsElem(bb.Min), d3.AbsElem(bb.Max)))
	minExtent := minRelativeExtent * magnitude
	if minExtent < math.SmallestNonzeroFloat64 {
		minExtent = 1
	}
	if extent < minExtent {
		extent = minExtent
	}
	scale := extent * scaleFactor
	if scale <= 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		return Transform{}, errors.Wrapf(ErrInsufficientData, "cannot normalize samples with extent %g", extent)
	}
	return Transform{Center: bb.Center(), Scale: scale}, nil
}

func loadPoints(s sample.Stream, workers int, tf Transform, depth int) ([]Point, error) {
	s.Reset()
	parts := make([][]Point, workers)
	err := parallel.Run(workers, func(w int) error {
		var part []Point
		for {
			smp, ok := s.Read(w)
			if !ok {
				break
			}
			n := d3.FromMS3(smp.Normal)
			if !d3.IsFinite(n) {
				return errors.Wrapf(ErrInvalidSample, "non-finite normal %v", smp.Normal)
			}
			p := d3.FromMS3(smp.Position)
			if !d3.IsFinite(p) {
				return errors.Wrapf(ErrInsufficientData, "non-finite position %v", smp.Position)
			}
			u := tf.ToUnit(p)
			part = append(part, Point{
				Position: u,
				Normal:   n,
				Key:      Encode(CellOf(u, depth)),
			})
		}
		parts[w] = part
		return nil
	})
	if err == nil {
		err = sample.Err(s)
	}
	if err != nil {
		return nil, err
	}
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	points := make([]Point, 0, total)
	for _, p := range parts {
		points = append(points, p...)
	}
	return points, nil
}

// CellOf returns the offset of the depth d cell containing the normalized
// position u. Positions outside the unit cube are clamped to its border cells.
func CellOf(u r3.Vec, depth int) [3]int32 {
	side := float64(int64(1) << depth)
	return [3]int32{cellIndex(u.X, side), cellIndex(u.Y, side), cellIndex(u.Z, side)}
}

func cellIndex(v, side float64) int32 {
	c := math.Floor(v * side)
	if c < 0 {
		return 0
	}
	if c > side-1 {
		return int32(side - 1)
	}
	return int32(c)
}

func lessPoint(a, b *Point) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	if c := compareVec(a.Position, b.Position); c != 0 {
		return c < 0
	}
	return compareVec(a.Normal, b.Normal) < 0
}

func compareVec(a, b r3.Vec) int {
	switch {
	case a.X != b.X:
		return cmpFloat(a.X, b.X)
	case a.Y != b.Y:
		return cmpFloat(a.Y, b.Y)
	case a.Z != b.Z:
		return cmpFloat(a.Z, b.Z)
	}
	return 0
}

func cmpFloat(a, b float64) int {
	if a < b {
		return -1
	}
	return 1
}
