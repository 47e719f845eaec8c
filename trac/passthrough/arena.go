package passthrough

import (
	"unsafe"

	"github.com/tracealloc/tracealloc/internal/align"
)

// arenaSize is the capacity of the bootstrap fallback arena. The only
// client is the resolver itself, whose transitive allocations are small;
// exhaustion is unrecoverable and means the resolver allocated far more
// than expected.
const arenaSize = 1 << 20

// The arena is a statically reserved buffer with a monotonically
// advancing cursor and no deallocation. The cursor is only moved by the
// goroutine running the resolver, which holds the resolve mutex, so no
// further synchronization is needed.
var (
	arenaBuf    [arenaSize]byte
	arenaCursor uintptr
)

func arenaBase() uintptr {
	return uintptr(unsafe.Pointer(&arenaBuf[0]))
}

// arenaAlloc rounds the cursor up to the boundary derived from bound,
// reserves size bytes and returns their address, or 0 when the span does
// not fit in the remaining arena.
func arenaAlloc(bound, size uintptr) uintptr {
	base := arenaBase()
	ptr := align.Round(base+arenaCursor, bound)
	end := ptr + size
	if end > base+arenaSize {
		return 0
	}
	arenaCursor = end - base
	return ptr
}

// InArena reports whether ptr was handed out by the fallback arena.
func InArena(ptr uintptr) bool {
	base := arenaBase()
	return ptr >= base && ptr < base+arenaSize
}
