package arena

import (
	"math/rand"
	"time"
)

// globalRand backs defaultRandSource, used whenever New is called with a
// nil RandSource. Tests never hit this path: they always pass their own
// RandSource to pin the coin-flip sequence.
var globalRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// height/next accessors work identically on the header sentinel and on any
// free block: both store a height word followed by up to MaxHeight NEXT
// pointers at the start of their payload.

func (a *Arena) height(node int32) int32 {
	return a.readWord(node + heightOffset)
}

func (a *Arena) setHeight(node, h int32) {
	a.writeWord(node+heightOffset, h)
}

func (a *Arena) next(node int32, level int) int32 {
	return a.readWord(node + nextOffset + int32(level))
}

func (a *Arena) setNext(node int32, level int, val int32) {
	a.writeWord(node+nextOffset+int32(level), val)
}

func (a *Arena) listHeight() int32 {
	return a.height(headerOffset)
}

// randomHeight samples a geometric distribution with p = 1/2, capped at
// MaxHeight: start at 1, flip a coin, increment on heads, stop on tails or
// at the cap.
func (a *Arena) randomHeight() int32 {
	h := int32(1)
	for h < MaxHeight && a.rng.Uint32()&1 == 1 {
		h++
	}
	return h
}

// chooseHeight samples a height for a node of the given payload size and
// clamps it twice: first against what the payload can hold, then against
// the list's current height (which may only grow by one per insert,
// regardless of how tall the sample was).
func (a *Arena) chooseHeight(size int32) int32 {
	h := a.randomHeight()
	if size-1 < h+1 {
		h = size - 2
	}
	if cur := a.listHeight(); h > cur {
		h = cur + 1
	}
	return h
}

// findPredecessors descends the skip list from the header, recording in
// a.updates[level] the last node at each level whose NEXT[level] points
// past the first node of size >= minSize. This is the shared traversal
// behind search, insert, and remove. It returns the node search would land
// on: either the header (no fit)
// or the first node with size >= minSize.
func (a *Arena) findPredecessors(minSize int32) int32 {
	node := int32(headerOffset)
	level := int(a.listHeight()) - 1
	for level >= 0 {
		nxt := a.next(node, level)
		for nxt != headerOffset && a.sizeOf(nxt) < minSize {
			node = nxt
			nxt = a.next(node, level)
		}
		a.updates[level] = node
		level--
	}
	return a.next(node, 0)
}

// search returns the smallest free block with size >= minSize, or 0 if
// none exists (best-fit).
func (a *Arena) search(minSize int32) int32 {
	result := a.findPredecessors(minSize)
	if result == headerOffset {
		return 0
	}
	return result
}

// insert links free block B (payload size S) into the skip list and
// writes its free boundary tags.
func (a *Arena) insert(b, size int32) {
	a.findPredecessors(size)

	h := a.chooseHeight(size)
	if cur := a.listHeight(); h > cur {
		// Growing the list height by one: make the header's new top
		// level a valid self-loop sentinel before linking B in, so the
		// rewrite below sees a legal NEXT pointer to overwrite.
		a.setHeight(headerOffset, h)
		a.setNext(headerOffset, int(h-1), headerOffset)
		a.updates[h-1] = headerOffset
	}

	a.setHeight(b, h)
	for i := int32(0); i < h; i++ {
		pred := a.updates[i]
		a.setNext(b, int(i), a.next(pred, int(i)))
		a.setNext(pred, int(i), b)
	}

	a.writeFreeTags(b, size)
}

// remove unlinks free block B (payload size S) from the skip list and
// writes its used boundary tags.
func (a *Arena) remove(b, size int32) {
	a.findPredecessors(size)

	// Blocks of equal size are unordered relative to each other, so the
	// predecessor search may land just before a same-sized block that
	// isn't B. Walk forward along level 0 until B is found, opportunistically
	// tightening UPDATES at any level where the node we're passing links
	// directly to B.
	node := a.updates[0]
	for a.next(node, 0) != b {
		node = a.next(node, 0)
		if node == headerOffset || a.sizeOf(node) > size {
			panic(integrityErr("remove", "target block not found in freelist"))
		}
		h := a.height(node)
		for i := int32(0); i < h; i++ {
			if a.next(node, int(i)) == b {
				a.updates[i] = node
			}
		}
	}

	h := a.height(b)
	for i := int32(0); i < h; i++ {
		a.setNext(a.updates[i], int(i), a.next(b, int(i)))
	}

	cur := a.listHeight()
	for cur > 1 && a.next(headerOffset, int(cur-1)) == headerOffset {
		cur--
	}
	a.setHeight(headerOffset, cur)

	a.writeUsedTags(b, size)
}
