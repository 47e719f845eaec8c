// Package kind models coexisting allocator backends. A Kind hands out
// raw addresses the same way the underlying allocator does; the routing
// layer records which kind produced an allocation so that realloc and
// free find their way back to it.
package kind

import (
	"github.com/tracealloc/tracealloc/trac/passthrough"
)

// Kind is one allocator backend.
type Kind interface {
	Name() string
	Malloc(size uintptr) uintptr
	Calloc(count, unit uintptr) uintptr
	Memalign(bound, size uintptr) (uintptr, error)
	Realloc(ptr, size uintptr) uintptr
	Free(ptr uintptr)
}

// Default is the kind backed by the underlying allocator.
var Default Kind = defaultKind{}

type defaultKind struct{}

func (defaultKind) Name() string { return "default" }

func (defaultKind) Malloc(size uintptr) uintptr {
	return passthrough.Malloc(size)
}

func (defaultKind) Calloc(count, unit uintptr) uintptr {
	return passthrough.Calloc(count, unit)
}

func (defaultKind) Memalign(bound, size uintptr) (uintptr, error) {
	return passthrough.Memalign(bound, size)
}

func (defaultKind) Realloc(ptr, size uintptr) uintptr {
	return passthrough.Realloc(ptr, size)
}

func (defaultKind) Free(ptr uintptr) {
	passthrough.Free(ptr)
}
