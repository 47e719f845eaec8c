// Package freelist implements a first-fit allocator over mapped memory
// regions.
//
// Chunks carry boundary tags: a size word before the payload and a copy of
// it in the last word of the chunk. Bit 0 of the tag marks the chunk
// allocated; sizes are always multiples of the word size, so the bit is
// free. Free chunks keep an intrusive doubly-linked list in their payload,
// and a free is coalesced with both neighbours inside the same region.
//
// The heap either grows by mapping fresh anonymous regions or runs over a
// single fixed buffer (the pool-kind configuration, where exhaustion is
// surfaced to the caller instead of growing).
package freelist

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/tracealloc/tracealloc/internal/align"
	"github.com/tracealloc/tracealloc/internal/mem"
	"github.com/tracealloc/tracealloc/internal/mmfile"
)

// Runtime debug flag for heap logging - controlled by TRAC_LOG_HEAP env var.
var logHeap = os.Getenv("TRAC_LOG_HEAP") != ""

const (
	wordSize = 8
	// overhead is the per-chunk tag cost: header word + footer word.
	overhead = 2 * wordSize
	// minChunk is the smallest legal chunk: tags plus the two free-list
	// links that live in a free chunk's payload.
	minChunk = 4 * wordSize
	// splinterMax is the largest remainder that is absorbed into an
	// allocation instead of being split off as a free chunk.
	splinterMax = minChunk

	// defaultRegionSize is the mapping granule for growable heaps.
	defaultRegionSize = 1 << 20
	// regionAlign keeps region sizes on 64 KiB boundaries.
	regionAlign = 1 << 16

	allocatedBit = 1
)

// region is one mapped span of chunk memory. Chunks tile [base, end)
// exactly and never cross region boundaries.
type region struct {
	base    uintptr
	end     uintptr
	data    []byte
	cleanup func() error
}

// Stats holds internal heap statistics.
type Stats struct {
	AllocCalls       int
	FreeCalls        int
	GrowCalls        int
	BytesAllocated   uint64
	BytesFreed       uint64
	Splits           int
	CoalesceForward  int
	CoalesceBackward int
}

// Heap is a first-fit free-list allocator. All methods are safe for
// concurrent use.
type Heap struct {
	mu       sync.Mutex
	regions  []region // sorted by base
	freeHead uintptr  // head of the intrusive free list, 0 when empty
	fixed    bool     // fixed-capacity heap: never grow
	closed   bool
	stats    Stats
}

// New returns a growable heap backed by anonymous mappings.
func New() *Heap {
	return &Heap{}
}

// NewFixed returns a heap confined to the given buffer. The buffer must
// stay alive and unmoved for the life of the heap; mapped memory
// satisfies both.
func NewFixed(buf []byte) *Heap {
	h := &Heap{fixed: true}
	base := align.UpTo(mem.Base(buf), wordSize)
	end := (mem.Base(buf) + uintptr(len(buf))) &^ (wordSize - 1)
	if end > base && end-base >= minChunk {
		h.adopt(region{
			base:    base,
			end:     end,
			data:    buf,
			cleanup: func() error { return nil },
		})
	}
	return h
}

// Malloc allocates size bytes and returns their address, or 0 when the
// heap is exhausted.
func (h *Heap) Malloc(size uintptr) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.malloc(size)
}

// Calloc allocates count*unit zeroed bytes.
func (h *Heap) Calloc(count, unit uintptr) uintptr {
	total, ok := mulNoOverflow(count, unit)
	if !ok {
		return 0
	}
	h.mu.Lock()
	ptr := h.malloc(total)
	h.mu.Unlock()
	if ptr != 0 {
		mem.Zero(ptr, total)
	}
	return ptr
}

// Memalign allocates size bytes whose address is a multiple of bound.
func (h *Heap) Memalign(bound, size uintptr) (uintptr, error) {
	if !align.IsPow2(bound) {
		return 0, ErrBadAlign
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if bound <= wordSize {
		ptr := h.malloc(size)
		if ptr == 0 {
			return 0, ErrNoSpace
		}
		return ptr, nil
	}

	need := chunkSpan(size)
	request := need + bound + 2*minChunk
	c := h.takeFit(request)
	if c == 0 {
		return 0, ErrNoSpace
	}
	total := chunkSize(c)

	// Carve an aligned payload out of the oversized chunk. The leading
	// remainder goes back on the free list; it is always either zero or at
	// least minChunk bytes.
	payload := align.UpTo(c+wordSize, bound)
	for payload != c+wordSize && payload-wordSize-c < minChunk {
		payload += bound
	}
	start := payload - wordSize
	if gap := start - c; gap > 0 {
		setChunk(c, gap, false)
		h.pushFree(c)
		total -= gap
	}
	setChunk(start, total, true)
	h.split(start, need)
	h.stats.AllocCalls++
	h.stats.BytesAllocated += uint64(chunkSize(start))
	return payload, nil
}

// Realloc resizes the allocation at ptr. Shrinks happen in place; growth
// allocates, copies and frees. Returns the new address or 0 on
// exhaustion (the old allocation stays live in that case).
func (h *Heap) Realloc(ptr, size uintptr) uintptr {
	if ptr == 0 {
		return h.Malloc(size)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.regionOf(ptr)
	if r == nil || ptr < r.base+wordSize {
		return 0
	}
	c := ptr - wordSize
	if !isAllocated(c) {
		return 0
	}
	cur := chunkSize(c)
	need := chunkSpan(size)
	if need <= cur {
		if rem := cur - need; rem >= minChunk {
			setChunk(c, need, true)
			tail := c + need
			setChunk(tail, rem, false)
			h.stats.Splits++
			h.freeChunk(r, tail)
			h.stats.BytesFreed += uint64(rem)
		}
		return ptr
	}
	np := h.malloc(size)
	if np == 0 {
		return 0
	}
	mem.Copy(np, ptr, cur-overhead)
	h.release(r, ptr)
	return np
}

// Free returns the allocation at ptr to the heap. A pointer outside every
// region reports false and is left alone.
func (h *Heap) Free(ptr uintptr) bool {
	if ptr == 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.regionOf(ptr)
	if r == nil || ptr < r.base+wordSize {
		return false
	}
	if !isAllocated(ptr - wordSize) {
		// Double free or interior pointer; leave the heap intact.
		return false
	}
	h.release(r, ptr)
	return true
}

// UsableSize reports the payload capacity of the allocation at ptr.
func (h *Heap) UsableSize(ptr uintptr) (uintptr, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.regionOf(ptr)
	if r == nil || ptr < r.base+wordSize {
		return 0, false
	}
	c := ptr - wordSize
	if !isAllocated(c) {
		return 0, false
	}
	return chunkSize(c) - overhead, true
}

// Contains reports whether ptr lies inside one of the heap's regions.
func (h *Heap) Contains(ptr uintptr) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.regionOf(ptr) != nil
}

// Snapshot returns a copy of the heap counters.
func (h *Heap) Snapshot() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Close releases every region. Outstanding pointers become invalid.
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	var first error
	for _, r := range h.regions {
		if err := r.cleanup(); err != nil && first == nil {
			first = err
		}
	}
	h.regions = nil
	h.freeHead = 0
	return first
}

// ----------------------------------------------------------------------
// locked internals
// ----------------------------------------------------------------------

func (h *Heap) malloc(size uintptr) uintptr {
	need := chunkSpan(size)
	c := h.takeFit(need)
	if c == 0 {
		return 0
	}
	h.split(c, need)
	h.stats.AllocCalls++
	h.stats.BytesAllocated += uint64(chunkSize(c))
	return c + wordSize
}

// takeFit unlinks and returns the first free chunk of at least need
// bytes, growing the heap once if allowed. Returns 0 on exhaustion.
func (h *Heap) takeFit(need uintptr) uintptr {
	if h.closed {
		return 0
	}
	if c := h.findFit(need); c != 0 {
		return c
	}
	if h.fixed {
		return 0
	}
	if err := h.grow(need); err != nil {
		return 0
	}
	return h.findFit(need)
}

func (h *Heap) findFit(need uintptr) uintptr {
	for c := h.freeHead; c != 0; c = nextFree(c) {
		if chunkSize(c) >= need {
			h.unlink(c)
			setChunk(c, chunkSize(c), true)
			return c
		}
	}
	return 0
}

// split marks c allocated at need bytes and returns any remainder beyond
// the splinter threshold to the free list.
func (h *Heap) split(c, need uintptr) {
	total := chunkSize(c)
	if rem := total - need; rem > splinterMax {
		setChunk(c, need, true)
		tail := c + need
		setChunk(tail, rem, false)
		h.pushFree(tail)
		h.stats.Splits++
	}
}

// release frees the chunk under ptr, coalescing with both neighbours.
func (h *Heap) release(r *region, ptr uintptr) {
	c := ptr - wordSize
	size := chunkSize(c)
	h.stats.FreeCalls++
	h.stats.BytesFreed += uint64(size)
	h.freeChunk(r, c)
}

// freeChunk links the already-sized chunk c into the free list after
// merging it with free neighbours in the same region.
func (h *Heap) freeChunk(r *region, c uintptr) {
	size := chunkSize(c)

	if next := c + size; next < r.end && !isAllocated(next) {
		h.unlink(next)
		size += chunkSize(next)
		h.stats.CoalesceForward++
	}
	if c > r.base {
		if tag := mem.Load(c - wordSize); tag&allocatedBit == 0 {
			prev := c - tag
			h.unlink(prev)
			c = prev
			size += tag
			h.stats.CoalesceBackward++
		}
	}
	setChunk(c, size, false)
	h.pushFree(c)
}

// grow maps a fresh region big enough for need and seeds it with one free
// chunk.
func (h *Heap) grow(need uintptr) error {
	total := uintptr(defaultRegionSize)
	if need+overhead > total {
		total = align.UpTo(need+overhead, regionAlign)
	}
	data, cleanup, err := mmfile.MapRegion(int(total))
	if err != nil {
		return err
	}
	h.stats.GrowCalls++
	if logHeap {
		fmt.Fprintf(os.Stderr, "[HEAP] grow #%d: %d bytes (%d regions)\n",
			h.stats.GrowCalls, total, len(h.regions)+1)
	}
	h.adopt(region{
		base:    mem.Base(data),
		end:     mem.Base(data) + total,
		data:    data,
		cleanup: cleanup,
	})
	return nil
}

// adopt inserts a region keeping the slice sorted by base and seeds its
// single spanning free chunk.
func (h *Heap) adopt(r region) {
	idx := sort.Search(len(h.regions), func(i int) bool {
		return h.regions[i].base > r.base
	})
	h.regions = append(h.regions, region{})
	copy(h.regions[idx+1:], h.regions[idx:])
	h.regions[idx] = r

	setChunk(r.base, r.end-r.base, false)
	h.pushFree(r.base)
}

// regionOf locates the region containing ptr by binary search, or nil.
func (h *Heap) regionOf(ptr uintptr) *region {
	idx := sort.Search(len(h.regions), func(i int) bool {
		return h.regions[i].base > ptr
	})
	if idx == 0 {
		return nil
	}
	r := &h.regions[idx-1]
	if ptr >= r.end {
		return nil
	}
	return r
}

// ----------------------------------------------------------------------
// chunk and free-list primitives
// ----------------------------------------------------------------------

// chunkSpan converts a request size to a legal chunk size.
func chunkSpan(size uintptr) uintptr {
	n := align.Up8(size) + overhead
	if n < minChunk {
		n = minChunk
	}
	return n
}

func chunkSize(c uintptr) uintptr {
	return mem.Load(c) &^ allocatedBit
}

func isAllocated(c uintptr) bool {
	return mem.Load(c)&allocatedBit != 0
}

// setChunk writes both boundary tags of a chunk.
func setChunk(c, size uintptr, allocated bool) {
	tag := size
	if allocated {
		tag |= allocatedBit
	}
	mem.Store(c, tag)
	mem.Store(c+size-wordSize, tag)
}

// Free chunks keep their list links in the first two payload words.
func nextFree(c uintptr) uintptr  { return mem.Load(c + wordSize) }
func prevFree(c uintptr) uintptr  { return mem.Load(c + 2*wordSize) }
func setNextFree(c, next uintptr) { mem.Store(c+wordSize, next) }
func setPrevFree(c, prev uintptr) { mem.Store(c+2*wordSize, prev) }

func (h *Heap) pushFree(c uintptr) {
	setNextFree(c, h.freeHead)
	setPrevFree(c, 0)
	if h.freeHead != 0 {
		setPrevFree(h.freeHead, c)
	}
	h.freeHead = c
}

func (h *Heap) unlink(c uintptr) {
	next, prev := nextFree(c), prevFree(c)
	if prev != 0 {
		setNextFree(prev, next)
	} else {
		h.freeHead = next
	}
	if next != 0 {
		setPrevFree(next, prev)
	}
}

func mulNoOverflow(a, b uintptr) (uintptr, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	total := a * b
	if total/b != a {
		return 0, false
	}
	return total, true
}
