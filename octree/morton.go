package octree

// Morton keys interleave the bits of a cell offset so that the key of a
// parent cell is its child's key shifted right by 3 and all descendants of a
// cell share a contiguous key range. 21 bits per axis fit in a uint64.

const mortonBits = 21

func split3(v uint64) uint64 {
	v &= 0x1fffff
	v = (v | v<<32) & 0x1f00000000ffff
	v = (v | v<<16) & 0x1f0000ff0000ff
	v = (v | v<<8) & 0x100f00f00f00f00f
	v = (v | v<<4) & 0x10c30c30c30c30c3
	v = (v | v<<2) & 0x1249249249249249
	return v
}

func compact3(v uint64) uint64 {
	v &= 0x1249249249249249
	v = (v ^ (v >> 2)) & 0x10c30c30c30c30c3
	v = (v ^ (v >> 4)) & 0x100f00f00f00f00f
	v = (v ^ (v >> 8)) & 0x1f0000ff0000ff
	v = (v ^ (v >> 16)) & 0x1f00000000ffff
	v = (v ^ (v >> 32)) & 0x1fffff
	return v
}

// Encode returns the Morton key of a non-negative cell offset.
// The x bit is the least significant of each triplet.
func Encode(off [3]int32) uint64 {
	return split3(uint64(off[0])) | split3(uint64(off[1]))<<1 | split3(uint64(off[2]))<<2
}

// Decode is the inverse of Encode.
func Decode(key uint64) [3]int32 {
	return [3]int32{
		int32(compact3(key)),
		int32(compact3(key >> 1)),
		int32(compact3(key >> 2)),
	}
}
