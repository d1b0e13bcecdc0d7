// Package eval evaluates implicit functions over batches of positions.
package eval

import (
	"errors"
	"fmt"

	"github.com/soypat/glgl/math/ms3"
)

// SDF3 is a 3D implicit function evaluated in batches. Negative values lie
// inside the surface it describes.
type SDF3 interface {
	// Evaluate stores in dist the value of the function at each of pos.
	// dist and pos must be of same length.
	//
	// userData carries evaluator specific scratch data such as a [VecPool].
	Evaluate(pos []ms3.Vec, dist []float32, userData any) error
	// Bounds returns the box over which the function is defined.
	Bounds() ms3.Box
}

// Lattice evaluates sdf at res³ points spanning its bounds, corners
// included, and returns them in (i*res+j)*res+k order with i along x. The
// lattice is evaluated one x slab at a time with buffers from vp.
func Lattice(sdf SDF3, res int, vp *VecPool) ([]float32, error) {
	if res < 2 {
		return nil, fmt.Errorf("lattice resolution %d must be at least 2", res)
	}
	if vp == nil {
		vp = new(VecPool)
	}
	bb := sdf.Bounds()
	step := ms3.Scale(1/float32(res-1), bb.Size())
	out := make([]float32, res*res*res)
	slab := res * res
	pos := vp.V3.Acquire(slab)[:slab]
	defer vp.V3.Release(pos)
	for i := 0; i < res; i++ {
		for j := 0; j < res; j++ {
			for k := 0; k < res; k++ {
				pos[j*res+k] = ms3.Add(bb.Min, ms3.MulElem(step, ms3.Vec{X: float32(i), Y: float32(j), Z: float32(k)}))
			}
		}
		if err := sdf.Evaluate(pos, out[i*slab:(i+1)*slab], vp); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetVecPool asserts the userData as a VecPool. If assert fails then
// an error is returned with information on what went wrong.
func GetVecPool(userData any) (*VecPool, error) {
	vp, ok := userData.(*VecPool)
	if !ok {
		vper, ok := userData.(interface{ VecPool() *VecPool })
		if !ok {
			return nil, fmt.Errorf("want userData type *eval.VecPool, got %T", userData)
		}
		vp = vper.VecPool()
		if vp == nil {
			return nil, fmt.Errorf("nil return value from VecPool method of %T", userData)
		}
	}
	return vp, nil
}

// VecPool holds reusable position buffers so repeated batched evaluations do
// not generate garbage. It is not safe for concurrent use.
type VecPool struct {
	V3 bufPool[ms3.Vec]
}

// AssertAllReleased checks all buffers are not in use. Should be called
// after ending a run to find leaks.
func (vp *VecPool) AssertAllReleased() error {
	return vp.V3.assertAllReleased()
}

type bufPool[T any] struct {
	ins      [][]T
	acquired []bool
}

// Acquire returns a free buffer of at least minLength elements.
func (bp *bufPool[T]) Acquire(minLength int) []T {
	for i, locked := range bp.acquired {
		if !locked && len(bp.ins[i]) >= minLength {
			bp.acquired[i] = true
			return bp.ins[i]
		}
	}
	newSlice := make([]T, minLength)
	bp.ins = append(bp.ins, newSlice)
	bp.acquired = append(bp.acquired, true)
	return newSlice
}

// Release returns a buffer obtained from Acquire to the pool.
func (bp *bufPool[T]) Release(buf []T) error {
	if len(buf) == 0 {
		return errors.New("release of empty buffer")
	}
	for i, instance := range bp.ins {
		if len(instance) > 0 && &instance[0] == &buf[0] {
			if !bp.acquired[i] {
				return errors.New("release of unacquired buffer")
			}
			bp.acquired[i] = false
			return nil
		}
	}
	return errors.New("release of nonexistent buffer")
}

func (bp *bufPool[T]) assertAllReleased() error {
	for _, locked := range bp.acquired {
		if locked {
			return fmt.Errorf("acquired %T buffer never released", *new(T))
		}
	}
	return nil
}
