package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomHeightCapsAtMaxHeight(t *testing.T) {
	a, err := New(newRegion(4096), -1, -1, &seqRand{vals: []uint32{1}}) // always heads
	require.NoError(t, err)

	h := a.randomHeight()
	assert.Equal(t, int32(MaxHeight), h)
}

func TestRandomHeightStopsOnFirstTail(t *testing.T) {
	// heads, heads, heads, tail -> height 4
	a, err := New(newRegion(4096), -1, -1, &seqRand{vals: []uint32{1, 1, 1, 0, 0}})
	require.NoError(t, err)

	h := a.randomHeight()
	assert.Equal(t, int32(4), h)
}

func TestInsertGrowsListHeightByOneAtATime(t *testing.T) {
	a, err := New(newRegion(4096), -1, -1, &seqRand{vals: []uint32{1, 1, 1, 1, 1, 1, 1, 1}})
	require.NoError(t, err)

	assert.Equal(t, int32(1), a.listHeight())

	// Free two blocks back to back; each insert may raise the header's
	// height by at most one, regardless of how tall the sample was.
	off1, err := a.Alloc(64)
	require.NoError(t, err)
	off2, err := a.Alloc(64)
	require.NoError(t, err)

	h0 := a.listHeight()
	_, err = a.Free(off1)
	require.NoError(t, err)
	h1 := a.listHeight()
	assert.LessOrEqual(t, h1-h0, int32(1))

	_, err = a.Free(off2)
	require.NoError(t, err)
	h2 := a.listHeight()
	assert.LessOrEqual(t, h2-h1, int32(1))
}

func TestSearchReturnsSmallestSufficientBlock(t *testing.T) {
	a, err := New(newRegion(8192), -1, -1, allTails())
	require.NoError(t, err)

	// Carve the single initial free block into several smaller ones of
	// known size by allocating and freeing in a pattern that leaves a
	// range of free block sizes in the list.
	offA, err := a.Alloc(256)
	require.NoError(t, err)
	offB, err := a.Alloc(64)
	require.NoError(t, err)
	offC, err := a.Alloc(128)
	require.NoError(t, err)

	_, err = a.Free(offA)
	require.NoError(t, err)
	_, err = a.Free(offC)
	require.NoError(t, err)

	// offB is still allocated, so offA's and offC's free blocks are not
	// adjacent and cannot coalesce; the freelist holds both sizes.
	szA, err := a.SizeOf(offA)
	require.NoError(t, err)
	szC, err := a.SizeOf(offC)
	require.NoError(t, err)
	assert.NotEqual(t, szA, szC)

	want := need32(64)
	b := a.search(want)
	require.NotZero(t, b)
	assert.GreaterOrEqual(t, a.sizeOf(b), want)
	assert.Equal(t, int32(offA/PointerSize), b)

	_ = offB
}

func need32(nBytes int) int32 {
	q := int32((nBytes + PointerSize - 1) / PointerSize)
	if q < MinFreeableQuads {
		q = MinFreeableQuads
	}
	return q
}
