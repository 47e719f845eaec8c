package handler

import (
	"fmt"
	"runtime"

	"github.com/tracealloc/tracealloc/internal/stamp"
	"github.com/tracealloc/tracealloc/trac/modmap"
)

// captureStack walks the caller's stack into the handler's scratch
// buffer, drops the frames belonging to the allocation machinery itself
// and resolves the rest to (module, offset) pairs. Returns nil when
// stack capture is disabled.
func (h *Handler) captureStack() []modmap.LibAddr {
	if h.stackLevels == 0 {
		return nil
	}
	n := runtime.Callers(1, h.pcs)
	h.frames = h.frames[:0]
	for idx := h.stackOffset; idx < n; idx++ {
		h.frames = append(h.frames, modmap.Lookup(h.pcs[idx]))
	}
	return h.frames
}

// emit writes one trace line:
//
//	SIGN SECS.NSECS,HEX_ADDR,HEX_SIZE[,MODID+HEX_OFF]*
//
// where SIGN is '+' for an allocation and '-' for a release. Times come
// from the raw monotonic clock.
func (h *Handler) emit(alloc bool, base, size uintptr, stack []modmap.LibAddr) {
	if h.log == nil {
		return
	}
	sign := byte('-')
	if alloc {
		sign = '+'
	}
	sec, nsec := stamp.Monotonic()
	fmt.Fprintf(h.log, "%c%d.%09d,%016x,%016x", sign, sec, nsec, base, size)
	for _, la := range stack {
		fmt.Fprintf(h.log, ",%d+%x", la.Module, la.Offset)
	}
	fmt.Fprintln(h.log)
}
