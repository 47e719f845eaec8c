package trac

import (
	"os"

	"github.com/tracealloc/tracealloc/internal/align"
	"github.com/tracealloc/tracealloc/internal/goid"
	"github.com/tracealloc/tracealloc/internal/mem"
	"github.com/tracealloc/tracealloc/trac/modmap"
	"github.com/tracealloc/tracealloc/trac/passthrough"
)

// Malloc allocates size bytes.
func Malloc(size uintptr) uintptr {
	gid := goid.ID()
	if !ready.Load() || isNested(gid) {
		return passthrough.Malloc(size)
	}
	enter(gid)
	defer leave(gid)
	return currentHandler(gid).Malloc(size)
}

// Calloc allocates count*unit zeroed bytes.
func Calloc(count, unit uintptr) uintptr {
	gid := goid.ID()
	if !ready.Load() || isNested(gid) {
		return passthrough.Calloc(count, unit)
	}
	enter(gid)
	defer leave(gid)
	return currentHandler(gid).Calloc(count, unit)
}

// PosixMemalign allocates size bytes aligned to bound, which must be a
// power of two.
func PosixMemalign(bound, size uintptr) (uintptr, error) {
	gid := goid.ID()
	if !ready.Load() || isNested(gid) {
		return passthrough.Memalign(bound, size)
	}
	enter(gid)
	defer leave(gid)
	return currentHandler(gid).Memalign(bound, size)
}

// Memalign is the classic memalign shape over PosixMemalign; it returns
// 0 on failure.
func Memalign(bound, size uintptr) uintptr {
	ptr, err := PosixMemalign(bound, size)
	if err != nil {
		return 0
	}
	return ptr
}

// AlignedAlloc allocates size bytes aligned to bound; 0 on failure.
func AlignedAlloc(bound, size uintptr) uintptr {
	ptr, err := PosixMemalign(bound, size)
	if err != nil {
		return 0
	}
	return ptr
}

// Valloc allocates size bytes aligned to the page size.
func Valloc(size uintptr) uintptr {
	ptr, err := PosixMemalign(uintptr(os.Getpagesize()), size)
	if err != nil {
		return 0
	}
	return ptr
}

// Pvalloc allocates a page-aligned region whose length is rounded up to
// whole pages.
func Pvalloc(size uintptr) uintptr {
	bound := uintptr(os.Getpagesize())
	ptr, err := PosixMemalign(bound, align.Round(size, bound))
	if err != nil {
		return 0
	}
	return ptr
}

// Realloc resizes ptr to size bytes. A nil ptr allocates fresh. A
// pointer no handler knows (allocated before this goroutine's handler
// existed, or directly by the underlying allocator) is migrated into a
// handler allocation by copy.
func Realloc(ptr, size uintptr) uintptr {
	gid := goid.ID()
	if !ready.Load() || isNested(gid) {
		return passthrough.Realloc(ptr, size)
	}
	enter(gid)
	defer leave(gid)
	h := currentHandler(gid)
	if ptr == 0 {
		return h.Malloc(size)
	}
	if newptr, handled := h.Realloc(ptr, size); handled {
		return newptr
	}
	oldsize := passthrough.UsableSize(ptr)
	newptr := h.Malloc(size)
	if newptr != 0 {
		n := size
		if oldsize < n {
			n = oldsize
		}
		mem.Copy(newptr, ptr, n)
		passthrough.Free(ptr)
	}
	return newptr
}

// Free releases ptr. Nil and bootstrap-arena pointers are no-ops;
// pointers unknown to every handler fall back to the underlying free.
func Free(ptr uintptr) {
	if ptr == 0 || passthrough.InArena(ptr) {
		return
	}
	gid := goid.ID()
	h, ok := peekHandler(gid)
	if !ready.Load() || isNested(gid) || !ok {
		passthrough.Free(ptr)
		return
	}
	enter(gid)
	defer leave(gid)
	if !h.Free(ptr) {
		passthrough.Free(ptr)
	}
}

// Cfree is the historical alias for Free.
func Cfree(ptr uintptr) {
	Free(ptr)
}

// UsableSize reports the capacity behind ptr: the recorded request size
// for tracked allocations, the underlying allocator's answer otherwise.
func UsableSize(ptr uintptr) uintptr {
	if ptr == 0 {
		return 0
	}
	gid := goid.ID()
	h, ok := peekHandler(gid)
	if !ready.Load() || isNested(gid) || !ok {
		return passthrough.UsableSize(ptr)
	}
	enter(gid)
	defer leave(gid)
	if size, hit := h.GetSize(ptr); hit {
		return size
	}
	return passthrough.UsableSize(ptr)
}

// OpenLibrary forwards to the underlying loader and refreshes the module
// map so addresses in the new object resolve.
func OpenLibrary(path string, flags int) (uintptr, error) {
	handle, err := passthrough.OpenLibrary(path, flags)
	gid := goid.ID()
	if !isNested(gid) {
		enter(gid)
		modmap.Update()
		leave(gid)
	}
	return handle, err
}

// CloseLibrary forwards to the underlying loader and refreshes the
// module map so stale segments stop resolving.
func CloseLibrary(handle uintptr) error {
	err := passthrough.CloseLibrary(handle)
	gid := goid.ID()
	if !isNested(gid) {
		enter(gid)
		modmap.Update()
		leave(gid)
	}
	return err
}
