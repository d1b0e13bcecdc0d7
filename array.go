package poisson

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Array is a dense row-major float32 array such as a numpy buffer handed
// over by a host language.
type Array struct {
	Data  []float32
	Shape []int
}

// NewArray returns the array with the given data and shape. The data is not copied.
func NewArray(data []float32, shape ...int) Array {
	return Array{Data: data, Shape: shape}
}

// Rows returns the size of the first dimension, or zero for arrays with no dimensions.
func (a Array) Rows() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return a.Shape[0]
}

// validateSamples checks that points and normals are both N×3 arrays.
func validateSamples(points, normals Array) error {
	err := multierr.Combine(validateVec3(points, "points"), validateVec3(normals, "normals"))
	if err != nil {
		return err
	}
	if points.Rows() != normals.Rows() {
		return errors.Wrapf(ErrInvalidInput, "points has %d rows but normals has %d", points.Rows(), normals.Rows())
	}
	return nil
}

func validateVec3(a Array, name string) error {
	if len(a.Shape) != 2 {
		return errors.Wrapf(ErrInvalidInput, "%s must be 2-dimensional, got %d dimensions", name, len(a.Shape))
	}
	var err error
	if a.Shape[0] < 0 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidInput, "%s has negative row count %d", name, a.Shape[0]))
	}
	if a.Shape[1] != 3 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidInput, "%s must have 3 columns, got %d", name, a.Shape[1]))
	}
	if err == nil && len(a.Data) != a.Shape[0]*3 {
		err = errors.Wrapf(ErrInvalidInput, "%s data length %d does not match shape %v", name, len(a.Data), a.Shape)
	}
	return err
}
