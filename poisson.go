// Package poisson reconstructs watertight implicit surfaces from oriented
// point clouds by solving a screened Poisson equation over an adaptive
// octree and samples the result on a regular grid.
//
// The solve runs coarse to fine. At every depth the system restricted to
// that depth's octree nodes is assembled against the solution accumulated
// at coarser depths, solved, and added to it.
package poisson

import (
	"math"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/soypat/glgl/math/ms3"
	"github.com/soypat/poisson/eval"
	"github.com/soypat/poisson/fem"
	"github.com/soypat/poisson/grid"
	"github.com/soypat/poisson/internal/d3"
	"github.com/soypat/poisson/internal/parallel"
	"github.com/soypat/poisson/octree"
	"github.com/soypat/poisson/sample"
	"github.com/soypat/poisson/solver"
	"go.uber.org/zap"
)

// ReconstructGrid reconstructs the surface through points with outward
// normals and returns the implicit function on the dual grid of 2^depth
// points per axis. points and normals are N×3 arrays. The point weight is 4.
func ReconstructGrid(points, normals Array, depth int) (*Grid, error) {
	if err := validateSamples(points, normals); err != nil {
		return nil, err
	}
	if depth < 1 {
		return nil, errors.Wrapf(ErrInvalidInput, "depth %d must be at least 1", depth)
	}
	s, err := sample.NewArrayStream(points.Data, normals.Data)
	if err != nil {
		return nil, invalidInput(err)
	}
	im, err := Reconstruct(s, DefaultParameters(depth))
	if err != nil {
		return nil, err
	}
	return im.Grid(grid.DefaultOptions())
}

var _ eval.SDF3 = (*Implicit)(nil)

// Implicit is a solved implicit function. It is safe for concurrent evaluation.
type Implicit struct {
	params SolutionParameters
	log    *zap.Logger
	tree   *octree.Tree
	basis  fem.Basis
	field  *fem.Field
	iso    float64
}

// Reconstruct reads the samples of s, which is reset and read twice, and
// solves for the implicit function. Unset tuning fields of params take
// their default values.
func Reconstruct(s sample.Stream, params SolutionParameters) (*Implicit, error) {
	p := params.withDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := checkMemory(fieldBytes(p.Depth)+gridBytes(1<<p.Depth), p.MaxMemory, "reconstruction"); err != nil {
		return nil, err
	}
	basis, err := fem.NewBasis(p.Degree)
	if err != nil {
		return nil, invalidInput(err)
	}
	log := p.logger()
	workers := parallel.Workers(p.Threads)

	start := time.Now()
	tree, err := octree.Build(s, octree.Config{
		Depth:            p.Depth,
		ScaleFactor:      p.ScaleFactor,
		Radius:           basis.Radius(),
		DensityNeighbors: p.DensityNeighbors,
		Workers:          workers,
	})
	if err != nil {
		return nil, buildError(err)
	}
	log.Info("octree built",
		zap.Int("samples", len(tree.Points)),
		zap.Int("nodes", len(tree.Nodes)),
		zap.Ints("levels", tree.LevelSizes()),
		zap.Duration("elapsed", time.Since(start)),
	)

	im := &Implicit{
		params: p,
		log:    log,
		tree:   tree,
		basis:  basis,
	}
	if err := im.solve(workers); err != nil {
		return nil, err
	}
	im.iso = im.isoValue(workers)
	log.Info("implicit function solved", zap.Float64("iso", im.iso), zap.Duration("elapsed", time.Since(start)))
	return im, nil
}

func (im *Implicit) solve(workers int) error {
	p := im.params
	method := solvers[p.Solver]
	asm, err := fem.NewAssembler(im.tree, im.basis, p.PointWeight, workers)
	if err != nil {
		return err
	}
	field := fem.NewField(0)
	for d := 0; d <= im.tree.Depth; d++ {
		start := time.Now()
		var coarse *fem.Field
		if d > 0 {
			field = field.Prolong(im.basis, workers)
			coarse = field
		}
		m, rhs, err := asm.Assemble(d, coarse)
		if err != nil {
			return errors.Wrapf(err, "assembling depth %d", d)
		}
		x := make([]float64, m.N)
		res, err := method(m, rhs, x, solver.Options{
			MaxIterations: p.Iterations,
			Tolerance:     p.Tolerance,
			Workers:       workers,
		})
		if err != nil {
			return errors.Wrapf(err, "solving depth %d", d)
		}
		fields := []zap.Field{
			zap.Int("depth", d),
			zap.Int("unknowns", m.N),
			zap.Int("nonzeros", m.NNZ()),
			zap.Int("iterations", res.Iterations),
			zap.Float64("residual", res.Residual),
			zap.Duration("elapsed", time.Since(start)),
		}
		if res.Converged {
			im.log.Debug("depth solved", fields...)
		} else {
			im.log.Warn("depth reached iteration limit", fields...)
		}
		level := im.tree.Level(d)
		for pos, idx := range level {
			field.Coeff[field.Index(im.tree.Nodes[idx].Offset)] += x[pos]
		}
	}
	im.field = field
	return nil
}

// isoValue returns the weighted mean of the function over the samples.
func (im *Implicit) isoValue(workers int) float64 {
	pts := im.tree.Points
	vals := make([]float64, len(pts))
	parallel.For(workers, len(pts), func(_, from, to int) error {
		for i := from; i < to; i++ {
			vals[i] = im.field.Value(im.basis, pts[i].Position)
		}
		return nil
	})
	var sum, wsum float64
	for i, p := range pts {
		sum += p.Weight * vals[i]
		wsum += p.Weight
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

// Grid samples the function on the lattice of opt. The returned grid is
// owned by the caller.
func (im *Implicit) Grid(opt grid.Options) (*Grid, error) {
	opt, err := opt.Resolve(im.field.Depth)
	if err != nil {
		return nil, invalidInput(err)
	}
	res := opt.Resolution()
	if err := checkMemory(gridBytes(res), im.params.MaxMemory, "grid evaluation"); err != nil {
		return nil, err
	}
	start := time.Now()
	values, res, err := grid.Evaluate(im.field, im.basis, opt, im.iso, parallel.Workers(im.params.Threads))
	if err != nil {
		return nil, err
	}
	tf := im.tree.Transform
	h := math.Ldexp(1, -opt.Depth)
	first := 0.5 * h
	if opt.Primal {
		first = 0
	}
	g := &Grid{
		Res:      res,
		Values:   values,
		Primal:   opt.Primal,
		Origin:   d3.ToMS3(tf.ToWorld(d3.Elem(first))),
		Spacing:  float32(tf.Scale * h),
		IsoValue: float32(im.iso),
	}
	for _, v := range values {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return nil, errors.Wrap(ErrSolverDiverged, "non-finite grid value")
		}
	}
	im.log.Info("grid evaluated", zap.Int("res", res), zap.Bool("primal", opt.Primal), zap.Duration("elapsed", time.Since(start)))
	return g, nil
}

// Evaluate stores in dist the function value at every world position in pos.
// Positions outside Bounds are clamped to it. A non-nil userData must hold an
// [eval.VecPool] which supplies the scratch buffer of normalized positions.
func (im *Implicit) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errors.Errorf("position and distance buffers length mismatch: %d != %d", len(pos), len(dist))
	}
	if len(pos) == 0 {
		return nil
	}
	vp := new(eval.VecPool)
	if userData != nil {
		var err error
		vp, err = eval.GetVecPool(userData)
		if err != nil {
			return err
		}
	}
	unit := vp.V3.Acquire(len(pos))[:len(pos)]
	tf := im.tree.Transform
	parallel.For(parallel.Workers(im.params.Threads), len(pos), func(_, from, to int) error {
		for i := from; i < to; i++ {
			unit[i] = d3.ToMS3(tf.ToUnit(d3.FromMS3(pos[i])))
			dist[i] = float32(im.field.Value(im.basis, d3.FromMS3(unit[i])) - im.iso)
		}
		return nil
	})
	return vp.V3.Release(unit)
}

// Bounds returns the world box over which the function is defined.
func (im *Implicit) Bounds() ms3.Box {
	return d3.Box(im.tree.Transform.Bounds()).MS3()
}
