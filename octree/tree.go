// Package octree builds the adaptive spatial hierarchy over a normalized
// sample set. Nodes live in a single arena and reference each other by index.
package octree

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/soypat/poisson/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// MaxDepth is the deepest level representable by Morton keys.
const MaxDepth = mortonBits

// None marks an absent parent or child.
const None int32 = -1

var noChildren = [8]int32{None, None, None, None, None, None, None, None}

// Node is a cubic cell of the octree. A node at depth d with offset o covers
// [o*h, (o+1)*h) of the unit cube on each axis where h = 2^-d.
type Node struct {
	Parent   int32
	Children [8]int32 // indexed by the low three bits of the child key
	Depth    uint8
	Offset   [3]int32
	Key      uint64
	// Samples covered by the cell are Tree.Points[SampleStart:SampleEnd].
	SampleStart, SampleEnd int32
}

// HasSamples reports whether any sample lies within the node's cell.
func (n *Node) HasSamples() bool { return n.SampleEnd > n.SampleStart }

// Point is a sample mapped to the unit cube.
type Point struct {
	Position r3.Vec
	Normal   r3.Vec
	// Weight approximates the surface area the sample represents.
	Weight float64
	// Key is the Morton key of the finest cell containing Position.
	Key uint64
}

// Transform maps world coordinates to the unit cube used during assembly and back.
type Transform struct {
	Center r3.Vec
	// Scale is the world length of the unit cube side.
	Scale float64
}

// ToUnit maps a world position into the normalized domain.
func (t Transform) ToUnit(p r3.Vec) r3.Vec {
	return r3.Add(r3.Scale(1/t.Scale, r3.Sub(p, t.Center)), d3.Elem(0.5))
}

// ToWorld maps a normalized position back into world coordinates.
func (t Transform) ToWorld(u r3.Vec) r3.Vec {
	return r3.Add(r3.Scale(t.Scale, r3.Sub(u, d3.Elem(0.5))), t.Center)
}

// Bounds returns the world box covered by the unit cube.
func (t Transform) Bounds() r3.Box {
	return r3.Box{Min: t.ToWorld(r3.Vec{}), Max: t.ToWorld(d3.Elem(1))}
}

// Tree is an adaptive octree over normalized samples.
type Tree struct {
	Nodes     []Node
	Points    []Point
	Depth     int
	Transform Transform
	// Radius is the number of neighbor cells refined around occupied cells.
	Radius int

	levels [][]int32
	lookup []map[uint64]int32
}

// Level returns the node indices at depth d sorted by key.
func (t *Tree) Level(d int) []int32 { return t.levels[d] }

// Position returns the position of the depth d node with the given offset
// within Level(d).
func (t *Tree) Position(d int, off [3]int32) (int, bool) {
	side := int32(1) << d
	if off[0] < 0 || off[1] < 0 || off[2] < 0 || off[0] >= side || off[1] >= side || off[2] >= side {
		return 0, false
	}
	pos, ok := t.lookup[d][Encode(off)]
	return int(pos), ok
}

// Find returns the arena index of the depth d node with the given offset.
func (t *Tree) Find(d int, off [3]int32) (int32, bool) {
	pos, ok := t.Position(d, off)
	if !ok {
		return None, false
	}
	return t.levels[d][pos], true
}

// Samples returns the samples within the cell of node n.
func (t *Tree) Samples(n int32) []Point {
	node := &t.Nodes[n]
	return t.Points[node.SampleStart:node.SampleEnd]
}

// LevelSizes returns the node count at every depth.
func (t *Tree) LevelSizes() []int {
	sizes := make([]int, len(t.levels))
	for d, l := range t.levels {
		sizes[d] = len(l)
	}
	return sizes
}

// sampleRange returns the range of points whose finest key descends from the
// depth d key k. shift is 3*(Depth-d).
func (t *Tree) sampleRange(k uint64, shift uint) (start, end int32) {
	lo, hi := k<<shift, (k+1)<<shift
	s := sort.Search(len(t.Points), func(i int) bool { return t.Points[i].Key >= lo })
	e := sort.Search(len(t.Points), func(i int) bool { return t.Points[i].Key >= hi })
	return int32(s), int32(e)
}

// refine creates the nodes of every depth. A depth d cell exists when it lies
// within radius cells of a depth d cell containing samples. The neighborhood
// of a child is contained in the neighborhood of its parent so parents always
// exist.
func (t *Tree) refine(radius int) error {
	t.levels = make([][]int32, t.Depth+1)
	t.lookup = make([]map[uint64]int32, t.Depth+1)
	t.Nodes = append(t.Nodes[:0], Node{
		Parent:    None,
		Children:  noChildren,
		SampleEnd: int32(len(t.Points)),
	})
	t.levels[0] = []int32{0}
	t.lookup[0] = map[uint64]int32{0: 0}

	var finest []uint64
	for i := range t.Points {
		if len(finest) == 0 || finest[len(finest)-1] != t.Points[i].Key {
			finest = append(finest, t.Points[i].Key)
		}
	}
	r := int32(radius)
	for d := 1; d <= t.Depth; d++ {
		side := int32(1) << d
		shift := uint(3 * (t.Depth - d))
		required := make(map[uint64]struct{})
		prev := ^uint64(0)
		for _, fk := range finest {
			k := fk >> shift
			if k == prev {
				continue
			}
			prev = k
			off := Decode(k)
			for dx := -r; dx <= r; dx++ {
				for dy := -r; dy <= r; dy++ {
					for dz := -r; dz <= r; dz++ {
						n := [3]int32{off[0] + dx, off[1] + dy, off[2] + dz}
						if n[0] < 0 || n[1] < 0 || n[2] < 0 || n[0] >= side || n[1] >= side || n[2] >= side {
							continue
						}
						required[Encode(n)] = struct{}{}
					}
				}
			}
		}
		keys := make([]uint64, 0, len(required))
		for k := range required {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		level := make([]int32, len(keys))
		lookup := make(map[uint64]int32, len(keys))
		for i, k := range keys {
			parentPos, ok := t.lookup[d-1][k>>3]
			if !ok {
				return errors.Errorf("refined cell %x of depth %d has no parent", k, d)
			}
			parent := t.levels[d-1][parentPos]
			idx := int32(len(t.Nodes))
			start, end := t.sampleRange(k, shift)
			t.Nodes = append(t.Nodes, Node{
				Parent:      parent,
				Children:    noChildren,
				Depth:       uint8(d),
				Offset:      Decode(k),
				Key:         k,
				SampleStart: start,
				SampleEnd:   end,
			})
			t.Nodes[parent].Children[k&7] = idx
			level[i] = idx
			lookup[k] = int32(i)
		}
		t.levels[d] = level
		t.lookup[d] = lookup
	}
	return nil
}
