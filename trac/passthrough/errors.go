package passthrough

import "errors"

var (
	// ErrNoMemory is the out-of-memory result of the aligned-allocation
	// passthrough, mirroring the ENOMEM contract of posix_memalign.
	ErrNoMemory = errors.New("passthrough: out of memory")

	// ErrNoLoader indicates that the bound implementation has no library
	// loader; OpenLibrary/CloseLibrary are then no-ops.
	ErrNoLoader = errors.New("passthrough: no library loader bound")
)
