package modmap

// setMapsPathForTest points the parser at a fixture and returns a
// restore function.
func setMapsPathForTest(path string) func() {
	prev := mapsPath
	mapsPath = path
	return func() { mapsPath = prev }
}

// resetForTest drops the singleton between tests.
func resetForTest() {
	lock.Lock()
	defer lock.Unlock()
	if instance != nil {
		instance.close()
		instance = nil
	}
}
