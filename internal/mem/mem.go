// Package mem provides byte-level views over raw machine addresses.
//
// Every address handled here points into memory the process obtained from
// mmap or from a static buffer, never into the Go heap, so the
// uintptr-to-pointer conversions below are stable across GC cycles.
package mem

import "unsafe"

// Slice returns an n-byte slice view over the memory at ptr.
func Slice(ptr, n uintptr) []byte {
	if ptr == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
}

// Copy copies n bytes from src to dst. The ranges must not overlap in a
// way copy cannot handle (copy supports overlapping slices).
func Copy(dst, src, n uintptr) {
	if n == 0 {
		return
	}
	copy(Slice(dst, n), Slice(src, n))
}

// Zero clears n bytes starting at ptr.
func Zero(ptr, n uintptr) {
	b := Slice(ptr, n)
	for i := range b {
		b[i] = 0
	}
}

// Base returns the address of the first byte of b, or 0 for an empty
// slice.
func Base(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Load reads a machine word from ptr.
func Load(ptr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(ptr))
}

// Store writes a machine word to ptr.
func Store(ptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(ptr)) = v
}
