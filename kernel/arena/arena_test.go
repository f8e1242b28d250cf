package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqRand replays a fixed sequence of Uint32 results, one per call, then
// repeats the last value forever. Tests use it to pin random_height's
// coin-flip stream so heights are deterministic.
type seqRand struct {
	vals []uint32
	i    int
}

func (r *seqRand) Uint32() uint32 {
	if r.i >= len(r.vals) {
		return r.vals[len(r.vals)-1]
	}
	v := r.vals[r.i]
	r.i++
	return v
}

// allTails always reports a coin-flip tail, so random_height always returns 1.
func allTails() RandSource { return &seqRand{vals: []uint32{0}} }

func newRegion(bytes int) []byte { return make([]byte, bytes) }

func TestNewInstallsFreshHeader(t *testing.T) {
	region := newRegion(1024)
	a, err := New(region, -1, -1, allTails())
	require.NoError(t, err)

	stats, err := a.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FreeBlocks)
	assert.Equal(t, 0, stats.UsedBlocks)

	wantFreeQuads := int32(1024/PointerSize) - 1 - pointerOverhead - firstBlockOffset
	assert.Equal(t, int(wantFreeQuads)*PointerSize, stats.FreeBytes)
}

func TestNewAdoptsExistingHeader(t *testing.T) {
	region := newRegion(1024)
	a1, err := New(region, -1, -1, allTails())
	require.NoError(t, err)

	_, err = a1.Alloc(64)
	require.NoError(t, err)

	a2, err := New(region, -1, -1, allTails())
	require.NoError(t, err)

	s1, err := a1.Stats()
	require.NoError(t, err)
	s2, err := a2.Stats()
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestNewRejectsUnalignedLength(t *testing.T) {
	region := newRegion(1023)
	_, err := New(region, 0, len(region), allTails())
	require.Error(t, err)
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindOutOfRange, ae.Kind)
}

func TestNewRejectsRegionTooSmall(t *testing.T) {
	region := newRegion(16)
	_, err := New(region, -1, -1, allTails())
	require.Error(t, err)
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindOutOfRange, ae.Kind)
}

// TestNewOverwritesGarbageFilledRegion pins spec section 8's re-init
// scenario: a region filled with non-zero, non-header garbage must be
// treated as uninitialized and produce a clean, fully-free arena.
func TestNewOverwritesGarbageFilledRegion(t *testing.T) {
	region := newRegion(4096)
	for i := range region {
		region[i] = 0x7B
	}

	a, err := New(region, -1, -1, allTails())
	require.NoError(t, err)

	stats, err := a.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FreeBlocks)
	assert.Equal(t, 0, stats.UsedBlocks)
	require.NoError(t, a.Verify())
}

func TestNewSubRegionOffsetAndLength(t *testing.T) {
	region := newRegion(2048)
	a, err := New(region, 512, 1024, allTails())
	require.NoError(t, err)

	off, err := a.Alloc(32)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, off, 0)
	assert.Less(t, off, 1024)
}
