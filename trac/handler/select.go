package handler

import (
	"fmt"
	"os"
	"sync"

	"github.com/tracealloc/tracealloc/trac/kind"
	"github.com/tracealloc/tracealloc/trac/modmap"
)

// Select picks the memory kind for a routed request. It receives the
// request size and the captured stack so that policies can route by call
// site; the default policy ignores both and returns the process-wide
// kind. Replacements must be deterministic given the same inputs and
// must be installed before the first routed allocation.
var Select = func(size uintptr, stack []modmap.LibAddr) kind.Kind {
	return processKind()
}

var (
	kindCreate  sync.Once
	kindDestroy sync.Once
	poolKind    *kind.Pool
)

// processKind lazily creates the configured pool kind, falling back to
// the default kind when no pool is configured or creation fails.
func processKind() kind.Kind {
	kindCreate.Do(createKind)
	if poolKind == nil {
		return kind.Default
	}
	return poolKind
}

func createKind() {
	dir := os.Getenv("TRAC_PMEMDIR")
	if dir == "" {
		return
	}
	size := envSize("TRAC_PMEMSIZE", 0)
	if size == 0 {
		size = 1 << 32 // default to 4 GiB
	}
	p, err := kind.NewPool(dir, uintptr(size))
	if err != nil {
		fmt.Printf("PMEM kind error: %v\n", err)
		return
	}
	fmt.Printf("PMEM kind: %s\n", p.Name())
	poolKind = p
}

func destroyKind() {
	kindDestroy.Do(func() {
		if poolKind != nil {
			poolKind.Close()
			poolKind = nil
		}
	})
}
