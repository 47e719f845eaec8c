package trac

import (
	"sync"
	"sync/atomic"

	"github.com/tracealloc/tracealloc/trac/handler"
)

// ready is false before Setup and after Teardown; while false every
// entry point bypasses the handlers.
var ready atomic.Bool

// Per-goroutine state, keyed by goroutine id: the bound handler and the
// nesting flag that marks a call already inside the routing path.
// Handlers stay bound until Teardown; goroutine ids are not reused while
// their goroutine lives, so a stale binding can only be observed by a
// fresh goroutine after the old one exited, at which point the handler
// is still valid for lookups.
var (
	boundHandlers sync.Map // int64 -> *handler.Handler
	nestedFlags   sync.Map // int64 -> struct{}
)

func isNested(gid int64) bool {
	_, ok := nestedFlags.Load(gid)
	return ok
}

func enter(gid int64) {
	nestedFlags.Store(gid, struct{}{})
}

func leave(gid int64) {
	nestedFlags.Delete(gid)
}

// currentHandler returns this goroutine's handler, installing one on
// first use.
func currentHandler(gid int64) *handler.Handler {
	if v, ok := boundHandlers.Load(gid); ok {
		return v.(*handler.Handler)
	}
	h := handler.Get()
	boundHandlers.Store(gid, h)
	return h
}

// peekHandler returns the bound handler without installing one; free and
// size queries on a thread that never allocated stay on the passthrough
// path.
func peekHandler(gid int64) (*handler.Handler, bool) {
	v, ok := boundHandlers.Load(gid)
	if !ok {
		return nil, false
	}
	return v.(*handler.Handler), true
}

func dropHandlers() {
	boundHandlers.Range(func(key, _ any) bool {
		boundHandlers.Delete(key)
		return true
	})
}
