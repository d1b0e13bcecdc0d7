package poisson

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/soypat/poisson/octree"
	"github.com/soypat/poisson/solver"
)

// Error kinds returned by the reconstruction. Test with errors.Is.
var (
	// ErrInvalidInput reports malformed arrays or parameters. It is detected
	// before any tree is built.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientData reports an empty sample set or one that cannot be
	// normalized into a bounding volume.
	ErrInsufficientData = octree.ErrInsufficientData
	// ErrSolverDiverged reports a solve that produced non-finite coefficients.
	ErrSolverDiverged = solver.ErrDiverged
	// ErrAllocation reports a reconstruction whose buffers would exceed the
	// configured memory limit. Retrying with a lower depth may succeed.
	ErrAllocation = errors.New("allocation failed")
)

// buildError classifies an octree construction failure. Failures other than
// insufficient data come from the stream and are reported as invalid input.
func buildError(err error) error {
	if errors.Is(err, ErrInsufficientData) {
		return err
	}
	return invalidInput(err)
}

// invalidInput marks err as ErrInvalidInput and keeps err in the chain.
func invalidInput(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
