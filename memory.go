package poisson

import (
	"math"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
)

// fieldBytes estimates the dense coefficient storage of a solve at depth:
// the accumulated field, its prolongation and one separable pass buffer.
func fieldBytes(depth int) float64 {
	return math.Pow(8, float64(depth)) * 8 * 3
}

// gridBytes estimates the evaluation of a res³ grid: the float32 result and
// two float64 separable pass buffers.
func gridBytes(res int) float64 {
	r := float64(res)
	return r * r * r * (4 + 16)
}

func checkMemory(estimate float64, limit ByteSize, what string) error {
	if limit > 0 && estimate > float64(limit) {
		return errors.Wrapf(ErrAllocation, "%s needs about %s, limit is %s",
			what, units.BytesSize(estimate), units.BytesSize(float64(limit)))
	}
	return nil
}
