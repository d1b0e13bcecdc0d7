package sample

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/soypat/glgl/math/ms3"
)

// ReaderStream decodes samples from text. Each non-empty line holds six
// whitespace separated numbers: x y z nx ny nz. Lines starting with '#' are
// ignored. Decoding stops at the first malformed line and the error is
// reported by Err.
type ReaderStream struct {
	mu   sync.Mutex
	r    io.ReadSeeker
	sc   *bufio.Scanner
	line int
	err  error
}

var _ Stream = (*ReaderStream)(nil)

// NewReaderStream returns a stream decoding r from its current start.
// r is sought back to the beginning on Reset.
func NewReaderStream(r io.ReadSeeker) *ReaderStream {
	s := &ReaderStream{r: r}
	s.Reset()
	return s
}

// Reset seeks the underlying reader back to the start.
func (s *ReaderStream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.line = 0
	s.err = nil
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		s.err = errors.Wrap(err, "rewinding sample reader")
		s.sc = nil
		return
	}
	s.sc = bufio.NewScanner(s.r)
}

// Err returns the first decoding error since the last Reset.
func (s *ReaderStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Read decodes the next sample.
func (s *ReaderStream) Read(worker int) (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil || s.sc == nil {
		return Sample{}, false
	}
	for s.sc.Scan() {
		s.line++
		text := strings.TrimSpace(s.sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		smp, err := parseSample(text)
		if err != nil {
			s.err = errors.Wrapf(err, "line %d", s.line)
			return Sample{}, false
		}
		return smp, true
	}
	if err := s.sc.Err(); err != nil {
		s.err = errors.Wrap(err, "reading samples")
	}
	return Sample{}, false
}

func parseSample(text string) (Sample, error) {
	fields := strings.Fields(text)
	if len(fields) != 6 {
		return Sample{}, errors.Errorf("want 6 values per sample, got %d", len(fields))
	}
	var v [6]float32
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return Sample{}, err
		}
		v[i] = float32(x)
	}
	return Sample{
		Position: ms3.Vec{X: v[0], Y: v[1], Z: v[2]},
		Normal:   ms3.Vec{X: v[3], Y: v[4], Z: v[5]},
	}, nil
}
