// Package sample provides the oriented point streams consumed by the
// reconstruction. A stream is read start to finish once per pass and may be
// rewound with Reset for algorithms that need several passes.
package sample

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/soypat/glgl/math/ms3"
)

// Sample is an oriented point: a position on the surface and an estimate of
// the outward surface normal at that position.
type Sample struct {
	Position ms3.Vec
	Normal   ms3.Vec
}

// Stream is a resettable, finite, ordered sequence of samples.
//
// Read may be called concurrently by several workers. Every sample is
// delivered exactly once across all Read calls between two calls to Reset.
// Single threaded callers pass a constant worker id.
type Stream interface {
	// Reset rewinds the stream to its first sample.
	Reset()
	// Read returns the next sample. ok is false once the stream is exhausted.
	Read(worker int) (s Sample, ok bool)
}

// Err returns the error recorded by streams that can fail while decoding
// their input. Streams without an Err method never fail.
func Err(s Stream) error {
	if e, ok := s.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}

// ReadAll resets s and reads its full contents on a single worker.
func ReadAll(s Stream) ([]Sample, error) {
	s.Reset()
	result := make([]Sample, 0, 1024)
	for {
		smp, ok := s.Read(0)
		if !ok {
			break
		}
		result = append(result, smp)
	}
	return result, Err(s)
}

// ArrayStream reads samples from flat xyz buffers, such as the data of two
// N×3 row-major arrays. The buffers are not copied.
type ArrayStream struct {
	points  []float32
	normals []float32
	n       int64
	cursor  atomic.Int64
}

var _ Stream = (*ArrayStream)(nil)

// NewArrayStream returns a stream over points and normals, both holding 3
// consecutive values per sample.
func NewArrayStream(points, normals []float32) (*ArrayStream, error) {
	if len(points) != len(normals) {
		return nil, errors.Errorf("points and normals length mismatch: %d != %d", len(points), len(normals))
	}
	if len(points)%3 != 0 {
		return nil, errors.Errorf("buffer length %d is not a multiple of 3", len(points))
	}
	return &ArrayStream{
		points:  points,
		normals: normals,
		n:       int64(len(points) / 3),
	}, nil
}

// Len returns the number of samples in the stream.
func (s *ArrayStream) Len() int { return int(s.n) }

// Reset rewinds the stream.
func (s *ArrayStream) Reset() { s.cursor.Store(0) }

// Read returns the next sample. The cursor is advanced atomically so
// concurrent workers never receive the same sample.
func (s *ArrayStream) Read(worker int) (Sample, bool) {
	i := s.cursor.Add(1) - 1
	if i >= s.n {
		return Sample{}, false
	}
	p, n := s.points[3*i:3*i+3], s.normals[3*i:3*i+3]
	return Sample{
		Position: ms3.Vec{X: p[0], Y: p[1], Z: p[2]},
		Normal:   ms3.Vec{X: n[0], Y: n[1], Z: n[2]},
	}, true
}

// SliceStream reads samples from a slice.
type SliceStream struct {
	mu      sync.Mutex
	samples []Sample
	current int
}

var _ Stream = (*SliceStream)(nil)

// NewSliceStream returns a stream over samples. The slice is not copied.
func NewSliceStream(samples []Sample) *SliceStream {
	return &SliceStream{samples: samples}
}

// Reset rewinds the stream.
func (s *SliceStream) Reset() {
	s.mu.Lock()
	s.current = 0
	s.mu.Unlock()
}

// Read returns the next sample.
func (s *SliceStream) Read(worker int) (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current >= len(s.samples) {
		return Sample{}, false
	}
	smp := s.samples[s.current]
	s.current++
	return smp, true
}
