package arena

// Alloc reserves a block able to hold nBytes and returns its payload's byte
// offset within the region passed to New, or 0 if the arena has no free
// block large enough. Running out of space is a distinguished return value,
// not an error.
func (a *Arena) Alloc(nBytes int) (offsetBytes int, err error) {
	defer a.recoverInto(&err)

	if nBytes <= 0 || nBytes%PointerSize != 0 {
		return 0, outOfRangeErr("Alloc", "nBytes must be a positive multiple of the pointer size")
	}
	if nBytes < MinFreeableBytes {
		return 0, outOfRangeErr("Alloc", "nBytes is below the minimum freeable size")
	}
	if nBytes > int(a.quads)*PointerSize {
		return 0, outOfRangeErr("Alloc", "nBytes exceeds the arena's total length")
	}

	need := int32(nBytes / PointerSize)

	b := a.search(need)
	if b == 0 {
		return 0, nil
	}

	size := a.sizeOf(b)
	a.remove(b, size)

	// Split-vs-take-whole: only carve a tail free block if what's left can
	// itself carry a height word, a NEXT pointer, and its own tags.
	if remainder := size - need - pointerOverhead; remainder >= MinFreeableQuads {
		a.writeUsedTags(b, need)
		a.insert(b+need+pointerOverhead, remainder)
	} else {
		a.writeUsedTags(b, size)
	}

	return int(b) * PointerSize, nil
}

// Free releases the block at addrBytes (as returned by a prior Alloc),
// coalescing with free neighbors on either side, and returns the number of
// payload bytes that block held before coalescing.
func (a *Arena) Free(addrBytes int) (bytesFreed int, err error) {
	defer a.recoverInto(&err)

	b, err := a.boundsCheck(addrBytes, "Free")
	if err != nil {
		return 0, err
	}
	size := a.sizeOf(b)
	if size < MinFreeableQuads || size > a.quads || a.isFree(b) {
		return 0, invalidBlockErr("Free", "address does not point at a currently-allocated block")
	}

	origBytes := int(size) * PointerSize

	before := a.freeNeighborBefore(b)
	after := a.freeNeighborAfter(b)

	if before != 0 {
		beforeSize := a.sizeOf(before)
		a.remove(before, beforeSize)
		size = beforeSize + pointerOverhead + size
		b = before
	}
	if after != 0 {
		afterSize := a.sizeOf(after)
		a.remove(after, afterSize)
		size = size + pointerOverhead + afterSize
	}

	a.insert(b, size)
	return origBytes, nil
}

// SizeOf returns the payload size, in bytes, of the block at addrBytes. It
// succeeds whether the block is currently allocated or free.
func (a *Arena) SizeOf(addrBytes int) (nBytes int, err error) {
	defer a.recoverInto(&err)

	b, err := a.boundsCheck(addrBytes, "SizeOf")
	if err != nil {
		return 0, err
	}
	size := a.sizeOf(b)
	if size < MinFreeableQuads || size > a.quads {
		return 0, invalidBlockErr("SizeOf", "address does not point at a block start")
	}
	return int(size) * PointerSize, nil
}

// boundsCheck validates addrBytes as a well-formed, in-range block address:
// 4-byte aligned, at or past the first block offset, and short of the
// arena's total length. It does not inspect the tag
// at that address; callers separately classify a misleading-but-in-range
// address as invalid-block.
func (a *Arena) boundsCheck(addrBytes int, op string) (int32, error) {
	if addrBytes < 0 || addrBytes%PointerSize != 0 {
		return 0, outOfRangeErr(op, "address is not 4-byte aligned")
	}
	b := int32(addrBytes / PointerSize)
	if b < firstBlockOffset || b >= a.quads {
		return 0, outOfRangeErr(op, "address is outside the arena")
	}
	return b, nil
}

// BlockRecord describes one block in address order, as produced by Inspect.
type BlockRecord struct {
	Offset int  // payload byte offset within the region
	Size   int  // payload size in bytes
	Free   bool

	// Height and Next are populated only for free blocks; they mirror the
	// block's skip-list node exactly as stored (Next entries beyond Height
	// are zero-valued and meaningless).
	Height int
	Next   [MaxHeight]int32
}

// Inspect returns a read-only, address-ordered snapshot of every block in
// the arena, including each free block's skip-list link data.
func (a *Arena) Inspect() (blocks []BlockRecord, err error) {
	defer a.recoverInto(&err)

	b := int32(firstBlockOffset)
	for b < a.quads-1 {
		size := a.sizeOf(b)
		rec := BlockRecord{
			Offset: int(b) * PointerSize,
			Size:   int(size) * PointerSize,
			Free:   a.isFree(b),
		}
		if rec.Free {
			h := a.height(b)
			rec.Height = int(h)
			for i := int32(0); i < h; i++ {
				rec.Next[i] = a.next(b, int(i))
			}
		}
		blocks = append(blocks, rec)
		b = b + size + pointerOverhead
	}
	return blocks, nil
}

// Verify performs a full structural check of the arena: every block's head
// and foot tags agree, the block chain tiles exactly to the tail sentinel
// with no gaps or overlaps, and the skip list visits free blocks in
// non-decreasing size order with no more entries than free blocks exist. It
// is called automatically by New when adopting an existing header, and is
// exported so callers can re-check a long-lived arena on their own schedule.
func (a *Arena) Verify() error {
	if !a.verifyHeader() {
		return integrityErr("Verify", "header tags missing or corrupt")
	}

	freeCount := 0
	b := int32(firstBlockOffset)
	for b < a.quads-1 {
		head := a.readWord(b - 1)
		size := head
		if size < 0 {
			size = -size
		}
		if b+size+pointerOverhead > a.quads {
			return integrityErr("Verify", "block overruns end of region")
		}
		foot := a.readWord(b + size)
		if foot != head {
			return integrityErr("Verify", "head/foot tag mismatch")
		}
		if head > 0 {
			freeCount++
		}
		b = b + size + pointerOverhead
	}
	if b != a.quads-1 {
		return integrityErr("Verify", "block chain does not tile to the tail sentinel")
	}

	return a.verifySkipList(freeCount)
}

// verifySkipList walks level 0 of the freelist and checks it visits exactly
// wantFree nodes in non-decreasing size order, each within bounds and
// genuinely marked free.
func (a *Arena) verifySkipList(wantFree int) error {
	prevSize := int32(-1)
	node := a.next(headerOffset, 0)
	seen := 0
	for node != headerOffset {
		if node < firstBlockOffset || node >= a.quads-1 {
			return integrityErr("Verify", "freelist node out of bounds")
		}
		if !a.isFree(node) {
			return integrityErr("Verify", "freelist node is not marked free")
		}
		size := a.sizeOf(node)
		if size < prevSize {
			return integrityErr("Verify", "freelist not in non-decreasing size order")
		}
		prevSize = size
		seen++
		if seen > wantFree {
			return integrityErr("Verify", "freelist longer than the number of free blocks")
		}
		node = a.next(node, 0)
	}
	if seen != wantFree {
		return integrityErr("Verify", "freelist does not cover every free block")
	}
	return nil
}

// recoverInto converts a panic raised by an internal integrity check (see
// skiplist.go remove) into a returned error, so a caught structural bug
// fails the one operation instead of crashing the process. The Arena should
// not be used again after receiving such an error.
func (a *Arena) recoverInto(err *error) {
	if r := recover(); r != nil {
		if ae, ok := r.(*Error); ok {
			*err = ae
			return
		}
		panic(r)
	}
}
