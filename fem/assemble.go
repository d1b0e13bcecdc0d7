package fem

import (
	"math"

	"github.com/pkg/errors"
	"github.com/soypat/poisson/internal/parallel"
	"github.com/soypat/poisson/octree"
	"github.com/soypat/poisson/solver"
	"gonum.org/v1/gonum/spatial/r3"
)

// Assembler builds the screened Poisson system of every octree depth
//
//	A(o,o') = ∫∇φ_o·∇φ_o' + α_d Σ_s w_s φ_o(p_s) φ_o'(p_s)
//	b(o)   = Σ_s w_s n_s·∇φ_o(p_s) - ∫∇φ_o·∇F - α_d Σ_s w_s φ_o(p_s) F(p_s)
//
// where o and o' are tree nodes of depth d, α_d = PointWeight*2^d and F is
// the solution accumulated over coarser depths.
type Assembler struct {
	tree        *octree.Tree
	basis       Basis
	pointWeight float64
	workers     int
	tables      []*Table
}

// ErrSupport reports a tree whose nodes do not cover the support of the
// basis functions of its occupied cells.
var ErrSupport = errors.New("octree does not cover basis support")

// NewAssembler precomputes the integral tables of every tree depth. The tree
// must be refined with a radius of at least b.Radius().
func NewAssembler(tree *octree.Tree, b Basis, pointWeight float64, workers int) (*Assembler, error) {
	if tree.Radius < b.Radius() {
		return nil, errors.Wrapf(ErrSupport, "refinement radius %d, degree %d basis needs %d", tree.Radius, b.Degree(), b.Radius())
	}
	a := &Assembler{
		tree:        tree,
		basis:       b,
		pointWeight: pointWeight,
		workers:     workers,
		tables:      make([]*Table, tree.Depth+1),
	}
	parallel.For(workers, len(a.tables), func(_, from, to int) error {
		for d := from; d < to; d++ {
			a.tables[d] = NewTable(b, d)
		}
		return nil
	})
	return a, nil
}

// ScreeningWeight returns α_d.
func (a *Assembler) ScreeningWeight(d int) float64 {
	return a.pointWeight * math.Ldexp(1, d)
}

type assembledRow struct {
	cols []int32
	vals []float64
	rhs  float64
}

// Assemble returns the system of depth d. coarse holds the accumulated
// coarser solution expressed at depth d and may be nil at depth 0.
func (a *Assembler) Assemble(d int, coarse *Field) (*solver.CSR, []float64, error) {
	t := a.tree
	level := t.Level(d)
	var prior []float64
	if coarse != nil {
		prior = make([]float64, len(t.Points))
		parallel.For(a.workers, len(t.Points), func(_, from, to int) error {
			for i := from; i < to; i++ {
				prior[i] = coarse.Value(a.basis, t.Points[i].Position)
			}
			return nil
		})
	}
	rows := make([]assembledRow, len(level))
	err := parallel.For(a.workers, len(level), func(_, from, to int) error {
		asm := newRowAssembler(a, d, coarse, prior)
		for p := from; p < to; p++ {
			var err error
			rows[p], err = asm.row(level[p])
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	nnz := 0
	for i := range rows {
		nnz += len(rows[i].cols)
	}
	m := solver.NewCSR(len(rows), nnz)
	rhs := make([]float64, len(rows))
	for i := range rows {
		m.AppendRow(rows[i].cols, rows[i].vals)
		rhs[i] = rows[i].rhs
	}
	return m, rhs, nil
}

// rowAssembler holds per worker scratch space.
type rowAssembler struct {
	a      *Assembler
	depth  int
	table  *Table
	alpha  float64
	coarse *Field
	prior  []float64
	width  int
	acc    []float64
	vals   [3][]Entry
}

func newRowAssembler(a *Assembler, d int, coarse *Field, prior []float64) *rowAssembler {
	width := 2*a.basis.Support() + 1
	return &rowAssembler{
		a:      a,
		depth:  d,
		table:  a.tables[d],
		alpha:  a.ScreeningWeight(d),
		coarse: coarse,
		prior:  prior,
		width:  width,
		acc:    make([]float64, width*width*width),
	}
}

func (ra *rowAssembler) accIndex(k [3]int32) int {
	n := int32(ra.a.basis.Support())
	return (int(k[0]+n)*ra.width+int(k[1]+n))*ra.width + int(k[2]+n)
}

func (ra *rowAssembler) row(node int32) (assembledRow, error) {
	t := ra.a.tree
	o := t.Nodes[node].Offset
	side := int32(1) << ra.depth
	n := int32(ra.a.basis.Support())
	r := int32(ra.a.basis.Radius())
	for i := range ra.acc {
		ra.acc[i] = 0
	}
	var rhs float64

	// Stiffness against existing nodes and against the coarser solution.
	var k [3]int32
	for k[0] = -n; k[0] <= n; k[0]++ {
		for k[1] = -n; k[1] <= n; k[1]++ {
			for k[2] = -n; k[2] <= n; k[2]++ {
				nb := [3]int32{o[0] + k[0], o[1] + k[1], o[2] + k[2]}
				if !inside(nb, side) {
					continue
				}
				s := ra.table.Stiffness3(o, k)
				if s == 0 {
					continue
				}
				if ra.coarse != nil {
					rhs -= s * ra.coarse.Coeff[ra.coarse.Index(nb)]
				}
				if _, ok := t.Position(ra.depth, nb); ok {
					ra.acc[ra.accIndex(k)] += s
				}
			}
		}
	}

	// Sample terms from cells where φ_o is supported.
	var c [3]int32
	for c[0] = o[0] - r; c[0] <= o[0]+r; c[0]++ {
		for c[1] = o[1] - r; c[1] <= o[1]+r; c[1]++ {
			for c[2] = o[2] - r; c[2] <= o[2]+r; c[2]++ {
				cell, ok := t.Find(ra.depth, c)
				if !ok {
					continue
				}
				start := t.Nodes[cell].SampleStart
				for i, p := range t.Samples(cell) {
					rhs += ra.sample(o, &p, int(start)+i)
				}
			}
		}
	}

	var out assembledRow
	out.rhs = rhs
	for k[0] = -n; k[0] <= n; k[0]++ {
		for k[1] = -n; k[1] <= n; k[1]++ {
			for k[2] = -n; k[2] <= n; k[2]++ {
				v := ra.acc[ra.accIndex(k)]
				if v == 0 {
					continue
				}
				nb := [3]int32{o[0] + k[0], o[1] + k[1], o[2] + k[2]}
				col, ok := t.Position(ra.depth, nb)
				if !ok {
					return assembledRow{}, errors.Wrapf(ErrSupport, "depth %d node %v reaches missing node %v", ra.depth, o, nb)
				}
				out.cols = append(out.cols, int32(col))
				out.vals = append(out.vals, v)
			}
		}
	}
	return out, nil
}

// sample accumulates the screening entries of one sample into the row of the
// function at offset o and returns its right hand side contribution.
func (ra *rowAssembler) sample(o [3]int32, p *octree.Point, idx int) float64 {
	b := ra.a.basis
	ra.vals[0] = b.Values(ra.vals[0], ra.depth, p.Position.X)
	ra.vals[1] = b.Values(ra.vals[1], ra.depth, p.Position.Y)
	ra.vals[2] = b.Values(ra.vals[2], ra.depth, p.Position.Z)
	var own [3]Entry
	for a := 0; a < 3; a++ {
		e, ok := find(ra.vals[a], o[a])
		if !ok {
			return 0
		}
		own[a] = e
	}
	grad := r3.Vec{
		X: own[0].Deriv * own[1].Value * own[2].Value,
		Y: own[0].Value * own[1].Deriv * own[2].Value,
		Z: own[0].Value * own[1].Value * own[2].Deriv,
	}
	rhs := p.Weight * r3.Dot(p.Normal, grad)
	if ra.alpha == 0 {
		return rhs
	}
	phi := own[0].Value * own[1].Value * own[2].Value
	if phi == 0 {
		return rhs
	}
	aw := ra.alpha * p.Weight * phi
	if ra.prior != nil {
		rhs -= aw * ra.prior[idx]
	}
	for _, ex := range ra.vals[0] {
		for _, ey := range ra.vals[1] {
			wxy := aw * ex.Value * ey.Value
			for _, ez := range ra.vals[2] {
				k := [3]int32{ex.Index - o[0], ey.Index - o[1], ez.Index - o[2]}
				ra.acc[ra.accIndex(k)] += wxy * ez.Value
			}
		}
	}
	return rhs
}

func find(vals []Entry, idx int32) (Entry, bool) {
	for _, e := range vals {
		if e.Index == idx {
			return e, true
		}
	}
	return Entry{}, false
}

func inside(off [3]int32, side int32) bool {
	return off[0] >= 0 && off[1] >= 0 && off[2] >= 0 && off[0] < side && off[1] < side && off[2] < side
}
