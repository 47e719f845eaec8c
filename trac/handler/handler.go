// Package handler realizes the per-thread allocation routing policy:
// requests are classified by size against a threshold, routed to a memory
// kind, accounted in a per-handler table and traced to a handler-private
// log. Reallocation and free locate their allocation across all handlers,
// so a pointer may be released by a different thread than the one that
// allocated it.
package handler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/tracealloc/tracealloc/internal/mem"
	"github.com/tracealloc/tracealloc/internal/stamp"
	"github.com/tracealloc/tracealloc/trac/kind"
	"github.com/tracealloc/tracealloc/trac/modmap"
	"github.com/tracealloc/tracealloc/trac/passthrough"
)

// defaultStackOffset hides the capture helper, the handler operation and
// the public entry point from recorded stacks.
const defaultStackOffset = 3

// Alloc is the record kept for one live allocation. A nil Kind marks an
// untagged allocation that went straight through to the underlying
// allocator.
type Alloc struct {
	Size uintptr
	Kind kind.Kind
}

// Handler owns one thread's allocation table, trace log and stack
// scratch buffers. A thread binds to at most one handler for its
// lifetime.
type Handler struct {
	id int

	mu     sync.RWMutex
	allocs map[uintptr]Alloc

	log         *os.File
	threshold   uintptr
	stackLevels int
	stackOffset int
	pcs         []uintptr
	frames      []modmap.LibAddr
}

// The registry holds every live handler for cross-thread lookup. It is
// guarded by the creation mutex; handlers themselves guard their tables
// with their own read-write lock.
var (
	createMu sync.Mutex
	handlers []*Handler
)

// Get creates a handler with the next dense id and registers it.
func Get() *Handler {
	createMu.Lock()
	defer createMu.Unlock()
	h := newHandler(len(handlers))
	handlers = append(handlers, h)
	return h
}

// End drains every handler and destroys the process-wide kind. Teardown
// assumes the host is quiescent.
func End() {
	createMu.Lock()
	all := handlers
	handlers = nil
	createMu.Unlock()
	for _, h := range all {
		h.OnEnd()
	}
	destroyKind()
}

func newHandler(id int) *Handler {
	h := &Handler{
		id:          id,
		allocs:      make(map[uintptr]Alloc),
		threshold:   uintptr(envSize("TRAC_THRESHOLD", 0)),
		stackLevels: int(envSize("TRAC_STACKLEVELS", 0)),
		stackOffset: defaultStackOffset,
	}
	if logpath := os.Getenv("TRAC_LOGPATH"); logpath != "" {
		name := fmt.Sprintf("alloc_%d_%d.log", id, stamp.ThreadID())
		f, err := os.Create(filepath.Join(logpath, name))
		if err == nil {
			h.log = f
		}
	}
	if h.stackLevels > 0 {
		h.pcs = make([]uintptr, h.stackLevels+h.stackOffset)
		h.frames = make([]modmap.LibAddr, 0, h.stackLevels)
	}
	return h
}

// envSize reads an integer environment variable (decimal or 0x-hex),
// substituting def on absence or parse failure.
func envSize(name string, def uint64) uint64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return def
	}
	return n
}

// Malloc routes one allocation request.
func (h *Handler) Malloc(size uintptr) uintptr {
	if size < h.threshold {
		ptr := passthrough.Malloc(size)
		if ptr != 0 {
			h.insert(ptr, Alloc{Size: size})
		}
		return ptr
	}
	frames := h.captureStack()
	k := Select(size, frames)
	ptr := k.Malloc(size)
	if ptr != 0 {
		h.emit(true, ptr, size, frames)
		h.insert(ptr, Alloc{Size: size, Kind: k})
	}
	return ptr
}

// Calloc routes a zeroed allocation of count*unit bytes.
func (h *Handler) Calloc(count, unit uintptr) uintptr {
	size := count * unit
	if size < h.threshold {
		ptr := passthrough.Calloc(count, unit)
		if ptr != 0 {
			h.insert(ptr, Alloc{Size: size})
		}
		return ptr
	}
	frames := h.captureStack()
	k := Select(size, frames)
	ptr := k.Calloc(count, unit)
	if ptr != 0 {
		h.emit(true, ptr, size, frames)
		h.insert(ptr, Alloc{Size: size, Kind: k})
	}
	return ptr
}

// Memalign routes an aligned allocation. The pointer is only returned on
// success, mirroring posix_memalign's out-parameter contract.
func (h *Handler) Memalign(bound, size uintptr) (uintptr, error) {
	if size < h.threshold {
		ptr, err := passthrough.Memalign(bound, size)
		if err != nil {
			return 0, err
		}
		h.insert(ptr, Alloc{Size: size})
		return ptr, nil
	}
	frames := h.captureStack()
	k := Select(size, frames)
	ptr, err := k.Memalign(bound, size)
	if err != nil {
		return 0, err
	}
	h.emit(true, ptr, size, frames)
	h.insert(ptr, Alloc{Size: size, Kind: k})
	return ptr, nil
}

// Realloc resizes an allocation previously produced by any handler.
// The second result is false when no handler knows the pointer; the
// caller is responsible for falling back. When it is true, a zero new
// address means the backing failed and the old allocation is still live.
func (h *Handler) Realloc(ptr, size uintptr) (uintptr, bool) {
	old, home := h.lookup(ptr)
	if home == nil {
		return 0, false
	}
	var newptr uintptr
	if size < h.threshold {
		if old.Kind != nil {
			newptr = old.Kind.Realloc(ptr, size)
		} else {
			newptr = passthrough.Realloc(ptr, size)
		}
		if newptr != 0 {
			if old.Size >= h.threshold {
				frames := h.captureStack()
				home.emit(false, ptr, old.Size, frames)
			}
			home.remove(ptr)
			h.insert(newptr, Alloc{Size: size, Kind: old.Kind})
		}
		return newptr, true
	}

	frames := h.captureStack()
	k := Select(size, frames)
	if old.Kind == k {
		newptr = k.Realloc(ptr, size)
	} else {
		newptr = k.Malloc(size)
		if newptr != 0 {
			n := old.Size
			if size < n {
				n = size
			}
			mem.Copy(newptr, ptr, n)
			if old.Kind != nil {
				old.Kind.Free(ptr)
			} else {
				passthrough.Free(ptr)
			}
		}
	}
	if newptr != 0 {
		if old.Size >= h.threshold {
			home.emit(false, ptr, old.Size, frames)
		}
		h.emit(true, newptr, size, frames)
		home.remove(ptr)
		h.insert(newptr, Alloc{Size: size, Kind: k})
	}
	return newptr, true
}

// Free releases an allocation previously produced by any handler,
// routing through the recorded kind. Reports false for unknown pointers.
func (h *Handler) Free(ptr uintptr) bool {
	info, home := h.lookup(ptr)
	if home == nil {
		return false
	}
	if info.Kind != nil {
		info.Kind.Free(ptr)
	} else {
		passthrough.Free(ptr)
	}
	if info.Size >= h.threshold {
		frames := h.captureStack()
		home.emit(false, ptr, info.Size, frames)
	}
	home.remove(ptr)
	return true
}

// GetSize reports the recorded request size for a live allocation.
func (h *Handler) GetSize(ptr uintptr) (uintptr, bool) {
	info, home := h.lookup(ptr)
	if home == nil {
		return 0, false
	}
	return info.Size, true
}

// OnEnd emits a release record for every residual entry above the
// threshold, clears the table and closes the log.
func (h *Handler) OnEnd() {
	h.mu.Lock()
	for base, info := range h.allocs {
		if info.Size > h.threshold {
			h.emit(false, base, info.Size, nil)
		}
	}
	h.allocs = make(map[uintptr]Alloc)
	h.mu.Unlock()
	if h.log != nil {
		h.log.Close()
		h.log = nil
	}
}

// lookup finds the allocation record for base, trying the local table
// first and then every other registered handler. The owning handler is
// returned alongside the record.
func (h *Handler) lookup(base uintptr) (Alloc, *Handler) {
	if info, ok := h.localLookup(base); ok {
		return info, h
	}
	return globalLookup(base, h)
}

// globalLookup asks every handler except exclude for the record.
func globalLookup(base uintptr, exclude *Handler) (Alloc, *Handler) {
	createMu.Lock()
	all := append([]*Handler(nil), handlers...)
	createMu.Unlock()
	for _, other := range all {
		if other == exclude {
			continue
		}
		if info, ok := other.localLookup(base); ok {
			return info, other
		}
	}
	return Alloc{}, nil
}

func (h *Handler) localLookup(base uintptr) (Alloc, bool) {
	h.mu.RLock()
	info, ok := h.allocs[base]
	h.mu.RUnlock()
	return info, ok
}

func (h *Handler) insert(base uintptr, info Alloc) {
	h.mu.Lock()
	h.allocs[base] = info
	h.mu.Unlock()
}

func (h *Handler) remove(base uintptr) {
	h.mu.Lock()
	delete(h.allocs, base)
	h.mu.Unlock()
}
