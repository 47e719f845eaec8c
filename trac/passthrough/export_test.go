package passthrough

// resetForTest rewinds the bootstrap state so each test can exercise the
// resolve step. Arena memory handed out earlier is abandoned, which is
// fine for tests.
func resetForTest() {
	resolveMu.Lock()
	defer resolveMu.Unlock()
	resolved.Store(false)
	resolvingGID.Store(0)
	impl = Impl{}
	resolver = defaultResolver
	arenaCursor = 0
}

func arenaAllocForTest(bound, size uintptr) uintptr {
	return arenaAlloc(bound, size)
}

func arenaRemainingForTest() uintptr {
	return arenaSize - arenaCursor
}
