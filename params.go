package poisson

import (
	"io"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/soypat/poisson/octree"
	"github.com/soypat/poisson/solver"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SolverKind names the linear solver used at every depth.
type SolverKind string

const (
	SolverCG          SolverKind = "cg"
	SolverGaussSeidel SolverKind = "gauss-seidel"
)

// ByteSize is a memory size that reads human friendly units such as "8GiB"
// from YAML.
type ByteSize int64

// String formats b with binary units.
func (b ByteSize) String() string { return units.BytesSize(float64(b)) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return invalidInput(errors.Wrapf(err, "memory size %q", s))
	}
	*b = ByteSize(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (b ByteSize) MarshalYAML() (any, error) { return b.String(), nil }

// SolutionParameters configure one reconstruction. They are copied when the
// reconstruction starts.
type SolutionParameters struct {
	// Depth is the finest octree depth. The default grid has 2^Depth points per axis.
	Depth int `yaml:"depth"`
	// PointWeight scales the screening term that pulls the implicit
	// function towards zero at the samples.
	PointWeight float64 `yaml:"point_weight"`
	Verbose     bool    `yaml:"verbose"`
	// Degree of the B-spline basis, 2 or 4.
	Degree int `yaml:"degree"`
	// ScaleFactor pads the bounding cube of the samples.
	ScaleFactor float64 `yaml:"scale_factor"`
	// Iterations bounds solver iterations per depth.
	Iterations int `yaml:"iterations"`
	// Tolerance is the relative residual at which a depth's solve stops.
	Tolerance float64    `yaml:"tolerance"`
	Solver    SolverKind `yaml:"solver"`
	// DensityNeighbors is the neighbor count used to estimate sample area.
	DensityNeighbors int `yaml:"density_neighbors"`
	// Threads bounds concurrency. Zero selects GOMAXPROCS.
	Threads int `yaml:"threads"`
	// MaxMemory bounds the estimated size of the dense buffers.
	MaxMemory ByteSize `yaml:"max_memory"`
	// Logger receives progress messages. When nil a development logger is
	// used if Verbose is set.
	Logger *zap.Logger `yaml:"-"`
}

const (
	defaultPointWeight      = 4
	defaultDegree           = 2
	defaultScaleFactor      = 1.1
	defaultIterations       = 200
	defaultTolerance        = 1e-7
	defaultDensityNeighbors = 8
	defaultMaxMemory        = 8 * units.GiB
)

// DefaultParameters returns the parameters used by ReconstructGrid for depth.
func DefaultParameters(depth int) SolutionParameters {
	return SolutionParameters{
		Depth:            depth,
		PointWeight:      defaultPointWeight,
		Degree:           defaultDegree,
		ScaleFactor:      defaultScaleFactor,
		Iterations:       defaultIterations,
		Tolerance:        defaultTolerance,
		Solver:           SolverCG,
		DensityNeighbors: defaultDensityNeighbors,
		MaxMemory:        defaultMaxMemory,
	}
}

// withDefaults fills unset tuning fields. Depth and PointWeight are kept as given.
func (p SolutionParameters) withDefaults() SolutionParameters {
	if p.Degree == 0 {
		p.Degree = defaultDegree
	}
	if p.ScaleFactor == 0 {
		p.ScaleFactor = defaultScaleFactor
	}
	if p.Iterations == 0 {
		p.Iterations = defaultIterations
	}
	if p.Tolerance == 0 {
		p.Tolerance = defaultTolerance
	}
	if p.Solver == "" {
		p.Solver = SolverCG
	}
	if p.DensityNeighbors == 0 {
		p.DensityNeighbors = defaultDensityNeighbors
	}
	if p.MaxMemory == 0 {
		p.MaxMemory = defaultMaxMemory
	}
	return p
}

// Validate reports every invalid field of p.
func (p SolutionParameters) Validate() error {
	var err error
	invalid := func(format string, args ...any) {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidInput, format, args...))
	}
	if p.Depth < 1 || p.Depth > octree.MaxDepth {
		invalid("depth %d out of range [1, %d]", p.Depth, octree.MaxDepth)
	}
	if !(p.PointWeight >= 0) {
		invalid("point weight %g must be non-negative", p.PointWeight)
	}
	if p.Degree != 2 && p.Degree != 4 {
		invalid("degree %d must be 2 or 4", p.Degree)
	}
	if !(p.ScaleFactor >= 1) {
		invalid("scale factor %g must be at least 1", p.ScaleFactor)
	}
	if p.Iterations < 1 {
		invalid("iterations %d must be positive", p.Iterations)
	}
	if !(p.Tolerance > 0) {
		invalid("tolerance %g must be positive", p.Tolerance)
	}
	if _, ok := solvers[p.Solver]; !ok {
		invalid("unknown solver %q", p.Solver)
	}
	if p.DensityNeighbors < 1 {
		invalid("density neighbors %d must be positive", p.DensityNeighbors)
	}
	if p.Threads < 0 {
		invalid("threads %d must not be negative", p.Threads)
	}
	if p.MaxMemory < 0 {
		invalid("max memory %d must not be negative", p.MaxMemory)
	}
	return err
}

var solvers = map[SolverKind]solver.Method{
	SolverCG:          solver.CG,
	SolverGaussSeidel: solver.GaussSeidel,
}

func (p SolutionParameters) logger() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	if p.Verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			return l
		}
	}
	return zap.NewNop()
}

// LoadParameters reads YAML encoded parameters from r. Fields absent from
// the document keep their DefaultParameters value. Unknown fields are an error.
func LoadParameters(r io.Reader) (SolutionParameters, error) {
	p := DefaultParameters(0)
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return p, errors.Wrap(err, "decoding parameters")
	}
	return p, nil
}
