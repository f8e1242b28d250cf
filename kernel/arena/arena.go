// Package arena implements a boundary-tagged memory allocator over a
// caller-supplied fixed-size byte region. The region is reinterpreted as a
// sequence of 32-bit signed words ("quads"); blocks are bracketed by
// matching head/foot tag words whose sign carries the free bit and whose
// magnitude carries the payload size, and free blocks are indexed by size
// in a skip list threaded through their own payload (see skiplist.go).
//
// Arena is not safe for concurrent use. Callers that share an Arena across
// goroutines must serialize access with their own mutex; nothing here
// blocks, yields, or spawns background work.
package arena

import (
	"encoding/binary"
)

const (
	// PointerSize is the width of one quad in bytes.
	PointerSize = 4

	// MaxHeight bounds the number of forward levels a skip-list node (and
	// the header sentinel) may carry.
	MaxHeight = 32

	// HeaderSize is the payload size, in quads, of the header sentinel
	// block: one height word plus 2*MaxHeight quads. Only the height word
	// and the first MaxHeight of those quads (the NEXT pointers, all of
	// which are written regardless of the list's current height) are used.
	HeaderSize = 1 + 2*MaxHeight

	// pointerOverhead is the two boundary-tag words flanking every block.
	pointerOverhead = 2

	// headerOffset is the fixed quad index of the header block's payload
	// start (quad 0 is reserved for the header's own head tag).
	headerOffset = 1

	// firstBlockOffset is the quad index of the first real block's
	// payload start: past the header's head tag, payload, and foot tag.
	firstBlockOffset = headerOffset + HeaderSize + pointerOverhead

	// MinFreeableQuads is the smallest payload a free block may have: one
	// height word plus at least one NEXT pointer.
	MinFreeableQuads = 3

	// MinFreeableBytes is MinFreeableQuads expressed in bytes.
	MinFreeableBytes = MinFreeableQuads * PointerSize

	// minUsableQuads is the fewest total quads a region can have and still
	// install a header plus one free block of at least MinFreeableQuads:
	// firstBlockOffset, the tags and NEXT room of that one free block, and
	// the single trailing tail-sentinel word the tiling recurrence
	// (B + size + pointerOverhead) must land on exactly.
	minUsableQuads = firstBlockOffset + pointerOverhead + MinFreeableQuads + 1

	// OverheadBytes is the minimum backing-region size construction
	// requires.
	OverheadBytes = minUsableQuads * PointerSize

	heightOffset = 0 // quad offset of the height word within a free block's payload
	nextOffset   = 1 // quad offset of NEXT[0] within a free block's payload
)

// RandSource supplies the coin-flip stream randomHeight draws from. Tests
// pin a deterministic sequence; production code can leave it nil and get a
// math/rand-backed default.
type RandSource interface {
	Uint32() uint32
}

// Arena manages allocation over one caller-supplied byte region. The zero
// value is not usable; construct with New.
type Arena struct {
	region []byte // the managed sub-region, byte-addressed
	quads  int32  // len(region) / PointerSize

	rng     RandSource
	updates [MaxHeight]int32 // scratch predecessor array, see skiplist.go
}

// New adopts region[byteOffset : byteOffset+byteLength] as an arena. If the
// sub-region already carries a valid header (verifyHeader), it is adopted
// as-is after a full integrity check; otherwise a fresh header and a
// single free block spanning the remainder are written.
//
// byteOffset < 0 means 0 (the start of region); byteLength < 0 means "the
// remainder of region starting at byteOffset".
func New(region []byte, byteOffset, byteLength int, rng RandSource) (*Arena, error) {
	if byteOffset < 0 {
		byteOffset = 0
	}
	if byteLength < 0 {
		byteLength = len(region) - byteOffset
	}
	if byteOffset < 0 || byteLength < 0 || byteOffset+byteLength > len(region) {
		return nil, outOfRangeErr("New", "byteOffset/byteLength out of bounds")
	}
	if byteLength%PointerSize != 0 {
		return nil, outOfRangeErr("New", "region length must be 4-byte aligned")
	}
	if byteLength < OverheadBytes {
		return nil, outOfRangeErr("New", "region too small for header, one free block and tail sentinel")
	}

	if rng == nil {
		rng = defaultRandSource{}
	}

	a := &Arena{
		region: region[byteOffset : byteOffset+byteLength],
		quads:  int32(byteLength / PointerSize),
		rng:    rng,
	}

	if a.verifyHeader() {
		if err := a.Verify(); err != nil {
			return nil, err
		}
		return a, nil
	}

	a.installHeader()
	return a, nil
}

// readWord returns the signed word at quad index q.
func (a *Arena) readWord(q int32) int32 {
	off := q * PointerSize
	return int32(binary.NativeEndian.Uint32(a.region[off : off+4]))
}

// writeWord stores v at quad index q.
func (a *Arena) writeWord(q int32, v int32) {
	off := q * PointerSize
	binary.NativeEndian.PutUint32(a.region[off:off+4], uint32(v))
}

// verifyHeader reports whether the region already carries a valid header
// block at the fixed header offset.
func (a *Arena) verifyHeader() bool {
	if a.quads < firstBlockOffset+1 {
		return false
	}
	return a.readWord(headerOffset-1) == HeaderSize &&
		a.readWord(headerOffset+HeaderSize) == HeaderSize
}

// installHeader writes a fresh header sentinel and one free block spanning
// the remainder of the region.
func (a *Arena) installHeader() {
	a.writeWord(headerOffset-1, HeaderSize)
	a.writeWord(headerOffset+HeaderSize, HeaderSize)
	a.setHeight(headerOffset, 1)
	a.setNext(headerOffset, 0, firstBlockOffset)
	for i := 1; i < MaxHeight; i++ {
		a.setNext(headerOffset, i, headerOffset)
	}

	// The tiling recurrence (next start = this start + size + pointerOverhead)
	// must land exactly on the trailing sentinel word at quads-1.
	size := a.quads - 1 - pointerOverhead - firstBlockOffset
	a.writeFreeTags(firstBlockOffset, size)
	a.setHeight(firstBlockOffset, 1)
	a.setNext(firstBlockOffset, 0, headerOffset)
}

// sizeOf returns the payload size, in quads, of the block starting at B.
func (a *Arena) sizeOf(b int32) int32 {
	s := a.readWord(b - 1)
	if s < 0 {
		return -s
	}
	return s
}

// isFree reports whether the block starting at B is free. Blocks inside
// the header region are never considered free.
func (a *Arena) isFree(b int32) bool {
	if b < firstBlockOffset {
		return false
	}
	return a.readWord(b-1) > 0
}

func (a *Arena) writeFreeTags(b, size int32) {
	a.writeWord(b-1, size)
	a.writeWord(b+size, size)
}

func (a *Arena) writeUsedTags(b, size int32) {
	a.writeWord(b-1, -size)
	a.writeWord(b+size, -size)
}

// freeNeighborBefore returns the start of the free block immediately
// preceding B, or 0 if there isn't one. The foot word at
// B-2 is read raw: a free neighbor's foot tag is positive and at least
// pointerOverhead, so a single >= comparison rules out both "used" (tag
// negative) and "no room for a block" (tag too small) in one step.
func (a *Arena) freeNeighborBefore(b int32) int32 {
	if b <= firstBlockOffset {
		return 0
	}
	foot := a.readWord(b - 2)
	if foot < pointerOverhead {
		return 0
	}
	return b - 2 - foot
}

// freeNeighborAfter returns the start of the free block immediately
// following the block starting at B, or 0 if there isn't one.
func (a *Arena) freeNeighborAfter(b int32) int32 {
	next := b + a.sizeOf(b) + pointerOverhead
	if next+MinFreeableQuads+pointerOverhead+1 > a.quads {
		return 0
	}
	head := a.readWord(next - 1)
	if head >= pointerOverhead {
		return next
	}
	return 0
}

// defaultRandSource is the package's built-in PRNG, used when New is
// called with a nil RandSource.
type defaultRandSource struct{}

func (defaultRandSource) Uint32() uint32 {
	return globalRand.Uint32()
}
