package freelist

import "errors"

var (
	// ErrNoSpace indicates that no free chunk large enough was found and
	// the heap could not grow.
	ErrNoSpace = errors.New("freelist: no free chunk large enough")

	// ErrBadAlign indicates an alignment bound that is not a power of two.
	ErrBadAlign = errors.New("freelist: alignment must be a power of two")
)
