//go:build !unix

// Package mmfile provides platform-specific helpers for mapping allocator
// regions: anonymous memory for the growable heap and file-backed memory
// for pool kinds.
package mmfile

import (
	"fmt"
	"os"
)

// MapRegion returns a heap-backed buffer when mmap is not available. The
// slice header is retained by the caller for the life of the region, so
// the base address stays stable.
func MapRegion(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("mmfile: invalid region size %d", size)
	}
	return make([]byte, size), func() error { return nil }, nil
}

// MapFile keeps an in-memory buffer and writes it back on cleanup when
// mmap is not available.
func MapFile(path string, size int64) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("mmfile: invalid file size %d", size)
	}
	data := make([]byte, size)
	cleanup := func() error {
		return os.WriteFile(path, data, 0o600)
	}
	return data, cleanup, nil
}

// Sync is a no-op without a real mapping.
func Sync([]byte) error { return nil }
