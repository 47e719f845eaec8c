// Package passthrough binds and fronts the underlying allocator.
//
// Every operation here is callable at any point in the process lifetime,
// including from inside the resolver that binds the underlying
// implementation. A resolver is expected to allocate (the original
// motivation is a symbol loader that calls calloc and free while
// resolving); such re-entrant calls are detected by goroutine identity
// and served from a fixed bump arena that needs no allocator of its own.
package passthrough

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/tracealloc/tracealloc/internal/freelist"
	"github.com/tracealloc/tracealloc/internal/goid"
)

// Runtime debug flag for bootstrap logging - controlled by TRAC_LOG_BOOT.
var logBoot = os.Getenv("TRAC_LOG_BOOT") != ""

// Impl is the function table of an underlying allocator. A zero function
// pointer in a resolved table makes the corresponding operation fail the
// way an unresolved symbol would; no recovery is attempted.
type Impl struct {
	OpenLibrary  func(path string, flags int) (uintptr, error)
	CloseLibrary func(handle uintptr) error
	Malloc       func(size uintptr) uintptr
	Calloc       func(count, unit uintptr) uintptr
	Memalign     func(bound, size uintptr) (uintptr, error)
	Realloc      func(ptr, size uintptr) uintptr
	Free         func(ptr uintptr)
	UsableSize   func(ptr uintptr) uintptr
}

var (
	// resolved flips to true exactly once, before the resolve mutex is
	// released; afterwards every operation tail-calls the bound table.
	resolved atomic.Bool

	// resolveMu serializes the resolve step. Re-entry by the resolving
	// goroutine is detected through resolvingGID instead of a recursive
	// mutex, which Go does not have.
	resolveMu    sync.Mutex
	resolvingGID atomic.Int64

	impl     Impl
	resolver = defaultResolver
)

// SetResolver replaces the binding step. It must be called before the
// first allocation reaches this package; once resolved the hook is never
// consulted again. The resolver may call back into this package.
func SetResolver(fn func() Impl) {
	resolveMu.Lock()
	defer resolveMu.Unlock()
	if !resolved.Load() {
		resolver = fn
	}
}

// Resolved reports whether the underlying implementation is bound.
func Resolved() bool {
	return resolved.Load()
}

// resolve binds the underlying implementation, serving the resolver's own
// allocations from the arena. Callers must not hold resolveMu.
func resolve() {
	resolveMu.Lock()
	defer resolveMu.Unlock()
	if resolved.Load() {
		return
	}
	if logBoot {
		fmt.Fprintf(os.Stderr, "[BOOT] resolving underlying allocator\n")
	}
	resolvingGID.Store(goid.ID())
	impl = resolver()
	resolvingGID.Store(0)
	resolved.Store(true)
	if logBoot {
		fmt.Fprintf(os.Stderr, "[BOOT] resolved, arena high-water %d bytes\n", arenaCursor)
	}
}

// recursing reports whether the current goroutine is inside the resolver.
func recursing() bool {
	gid := resolvingGID.Load()
	return gid != 0 && gid == goid.ID()
}

// defaultResolver builds the built-in system heap: a first-fit free-list
// allocator over anonymous mappings, with no library loader.
func defaultResolver() Impl {
	h := freelist.New()
	return Impl{
		Malloc: h.Malloc,
		Calloc: h.Calloc,
		Memalign: func(bound, size uintptr) (uintptr, error) {
			return h.Memalign(bound, size)
		},
		Realloc: h.Realloc,
		Free: func(ptr uintptr) {
			h.Free(ptr)
		},
		UsableSize: func(ptr uintptr) uintptr {
			size, ok := h.UsableSize(ptr)
			if !ok {
				return 0
			}
			return size
		},
	}
}

// OpenLibrary forwards to the bound loader, or reports ErrNoLoader.
func OpenLibrary(path string, flags int) (uintptr, error) {
	if !resolved.Load() {
		if recursing() {
			// The resolver has no reason to load libraries.
			return 0, ErrNoLoader
		}
		resolve()
	}
	if impl.OpenLibrary == nil {
		return 0, ErrNoLoader
	}
	return impl.OpenLibrary(path, flags)
}

// CloseLibrary forwards to the bound loader, or reports ErrNoLoader.
func CloseLibrary(handle uintptr) error {
	if !resolved.Load() {
		if recursing() {
			return ErrNoLoader
		}
		resolve()
	}
	if impl.CloseLibrary == nil {
		return ErrNoLoader
	}
	return impl.CloseLibrary(handle)
}

// Malloc allocates through the underlying allocator, or from the arena
// while the resolver is running on this goroutine.
func Malloc(size uintptr) uintptr {
	if !resolved.Load() {
		if recursing() {
			return arenaAlloc(16, size)
		}
		resolve()
	}
	return impl.Malloc(size)
}

// Calloc allocates count*unit bytes. Arena memory starts zeroed and is
// never reused, so the fallback needs no explicit clearing.
func Calloc(count, unit uintptr) uintptr {
	if !resolved.Load() {
		if recursing() {
			return arenaAlloc(16, count*unit)
		}
		resolve()
	}
	return impl.Calloc(count, unit)
}

// Memalign allocates size bytes aligned to bound.
func Memalign(bound, size uintptr) (uintptr, error) {
	if !resolved.Load() {
		if recursing() {
			ptr := arenaAlloc(bound, size)
			if ptr == 0 {
				return 0, ErrNoMemory
			}
			return ptr, nil
		}
		resolve()
	}
	return impl.Memalign(bound, size)
}

// Realloc resizes ptr. Arena pointers cannot be resized; a re-entrant
// realloc succeeds only for a nil pointer.
func Realloc(ptr, size uintptr) uintptr {
	if InArena(ptr) {
		return 0
	}
	if !resolved.Load() {
		if recursing() {
			if ptr == 0 {
				return arenaAlloc(16, size)
			}
			return 0
		}
		resolve()
	}
	return impl.Realloc(ptr, size)
}

// Free releases ptr. Nil and arena pointers are no-ops.
func Free(ptr uintptr) {
	if ptr == 0 || InArena(ptr) {
		return
	}
	if !resolved.Load() {
		if recursing() {
			return
		}
		resolve()
	}
	impl.Free(ptr)
}

// UsableSize reports the capacity behind ptr. There is no way of knowing
// the size of an arena allocation; those report 0.
func UsableSize(ptr uintptr) uintptr {
	if ptr == 0 || InArena(ptr) {
		return 0
	}
	if !resolved.Load() {
		if recursing() {
			return 0
		}
		resolve()
	}
	return impl.UsableSize(ptr)
}
