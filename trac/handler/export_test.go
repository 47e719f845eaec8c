package handler

import "sync"

// resetForTest clears the registry and the process-wide kind so each
// test starts from a fresh lifecycle.
func resetForTest() {
	destroyKind()
	createMu.Lock()
	for _, h := range handlers {
		h.OnEnd()
	}
	handlers = nil
	createMu.Unlock()
	kindCreate = sync.Once{}
	kindDestroy = sync.Once{}
	poolKind = nil
}
