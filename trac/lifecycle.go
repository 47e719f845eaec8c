package trac

import (
	"fmt"

	"github.com/tracealloc/tracealloc/internal/stamp"
	"github.com/tracealloc/tracealloc/trac/handler"
	"github.com/tracealloc/tracealloc/trac/modmap"
)

// Setup marks the library ready and emits the start-of-trace marker with
// monotonic and process-CPU timestamps. Before Setup every entry point
// passes through to the underlying allocator.
func Setup() {
	wsec, wnsec := stamp.Monotonic()
	psec, pnsec := stamp.ProcessCPU()
	fmt.Printf("TRAC_BEG:%d.%09d:%d.%09d\n", wsec, wnsec, psec, pnsec)
	ready.Store(true)
}

// Teardown emits the end-of-trace marker, stops routing and drains every
// handler: residual allocations above the threshold are logged as
// released, logs are closed and the module map is released. Teardown
// assumes the host is quiescent.
func Teardown() {
	wsec, wnsec := stamp.Monotonic()
	psec, pnsec := stamp.ProcessCPU()
	fmt.Printf("TRAC_END:%d.%09d:%d.%09d\n", wsec, wnsec, psec, pnsec)
	ready.Store(false)
	handler.End()
	dropHandlers()
	modmap.End()
}
