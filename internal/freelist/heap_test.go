package freelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracealloc/tracealloc/internal/mem"
)

func TestMallocFree(t *testing.T) {
	h := New()
	defer h.Close()

	ptr := h.Malloc(64)
	require.NotZero(t, ptr)

	// The payload must be writable without touching the boundary tags.
	b := mem.Slice(ptr, 64)
	for i := range b {
		b[i] = 0xAA
	}

	size, ok := h.UsableSize(ptr)
	require.True(t, ok)
	assert.GreaterOrEqual(t, size, uintptr(64))

	assert.True(t, h.Free(ptr))
	assert.False(t, h.Free(ptr), "double free must be rejected")
}

func TestFirstFitReuse(t *testing.T) {
	h := New()
	defer h.Close()

	ptr := h.Malloc(128)
	require.NotZero(t, ptr)
	keep := h.Malloc(128)
	require.NotZero(t, keep)

	require.True(t, h.Free(ptr))
	again := h.Malloc(128)
	assert.Equal(t, ptr, again, "freed chunk should be reused first-fit")
}

func TestCoalesce(t *testing.T) {
	h := New()
	defer h.Close()

	a := h.Malloc(64)
	b := h.Malloc(64)
	c := h.Malloc(64)
	require.NotZero(t, a)
	require.NotZero(t, b)
	require.NotZero(t, c)

	require.True(t, h.Free(a))
	require.True(t, h.Free(b)) // merges backward into a
	require.True(t, h.Free(c)) // merges into the region remainder

	// The whole region coalesced again: a large allocation lands at the
	// region start.
	big := h.Malloc(100 << 10)
	assert.Equal(t, a, big)

	stats := h.Snapshot()
	assert.Positive(t, stats.CoalesceBackward)
	assert.Positive(t, stats.CoalesceForward)
}

func TestCallocZeroesRecycledChunk(t *testing.T) {
	h := New()
	defer h.Close()

	ptr := h.Malloc(256)
	require.NotZero(t, ptr)
	b := mem.Slice(ptr, 256)
	for i := range b {
		b[i] = 0xFF
	}
	require.True(t, h.Free(ptr))

	zeroed := h.Calloc(16, 16)
	require.NotZero(t, zeroed)
	for i, v := range mem.Slice(zeroed, 256) {
		require.Zero(t, v, "byte %d not cleared", i)
	}
}

func TestCallocOverflow(t *testing.T) {
	h := New()
	defer h.Close()
	assert.Zero(t, h.Calloc(^uintptr(0), 2))
}

func TestMemalign(t *testing.T) {
	h := New()
	defer h.Close()

	for _, bound := range []uintptr{16, 64, 256, 4096} {
		ptr, err := h.Memalign(bound, 100)
		require.NoError(t, err, "bound %d", bound)
		require.NotZero(t, ptr)
		assert.Zero(t, ptr%bound, "bound %d", bound)

		b := mem.Slice(ptr, 100)
		for i := range b {
			b[i] = byte(i)
		}
		assert.True(t, h.Free(ptr))
	}

	_, err := h.Memalign(48, 16)
	assert.ErrorIs(t, err, ErrBadAlign)
}

func TestReallocPreservesData(t *testing.T) {
	h := New()
	defer h.Close()

	ptr := h.Malloc(64)
	require.NotZero(t, ptr)
	for i, b := range []byte("boundary-tagged") {
		mem.Slice(ptr, 64)[i] = b
	}

	grown := h.Realloc(ptr, 64<<10)
	require.NotZero(t, grown)
	assert.Equal(t, []byte("boundary-tagged"), mem.Slice(grown, 64)[:15])

	shrunk := h.Realloc(grown, 32)
	assert.Equal(t, grown, shrunk, "shrink should stay in place")
	assert.Equal(t, []byte("boundary-tagged"), mem.Slice(shrunk, 32)[:15])
	assert.True(t, h.Free(shrunk))
}

func TestFixedHeapExhaustion(t *testing.T) {
	buf := make([]byte, 4096)
	h := NewFixed(buf)

	var ptrs []uintptr
	for {
		ptr := h.Malloc(256)
		if ptr == 0 {
			break
		}
		ptrs = append(ptrs, ptr)
	}
	require.NotEmpty(t, ptrs, "fixed heap should serve at least one chunk")
	assert.Less(t, len(ptrs), 16, "4096-byte heap cannot hold 16 x 256-byte chunks")

	// Free everything; the full span must be allocatable again.
	for _, ptr := range ptrs {
		require.True(t, h.Free(ptr))
	}
	assert.NotZero(t, h.Malloc(2048))
}

func TestForeignPointer(t *testing.T) {
	h := New()
	defer h.Close()
	require.NotZero(t, h.Malloc(32))

	var local byte
	foreign := mem.Base([]byte{local})

	assert.False(t, h.Free(foreign))
	_, ok := h.UsableSize(foreign)
	assert.False(t, ok)
	assert.False(t, h.Contains(foreign))
	assert.Zero(t, h.Realloc(foreign, 64))
}

func TestGrowAcrossRegions(t *testing.T) {
	h := New()
	defer h.Close()

	// Two allocations that cannot share the default region force a
	// second mapping.
	a := h.Malloc(defaultRegionSize - 4096)
	b := h.Malloc(defaultRegionSize - 4096)
	require.NotZero(t, a)
	require.NotZero(t, b)
	assert.GreaterOrEqual(t, h.Snapshot().GrowCalls, 2)

	assert.True(t, h.Free(a))
	assert.True(t, h.Free(b))
}

func TestCloseReleasesRegions(t *testing.T) {
	h := New()
	ptr := h.Malloc(64)
	require.NotZero(t, ptr)
	require.NoError(t, h.Close())
	assert.Zero(t, h.Malloc(64), "closed heap must not allocate")
	require.NoError(t, h.Close(), "double close is a no-op")
}
