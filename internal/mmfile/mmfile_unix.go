//go:build unix

package mmfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MapRegion maps size bytes of zeroed anonymous memory and returns the
// mapping together with a cleanup function.
func MapRegion(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("mmfile: invalid region size %d", size)
	}
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, nil, err
	}
	return data, munmapOnce(data), nil
}

// MapFile creates (or truncates) the file at path, extends it to size
// bytes and maps it read-write shared. The returned cleanup unmaps the
// region and closes the file; removal of the file is left to the caller.
func MapFile(path string, size int64) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("mmfile: invalid file size %d", size)
	}
	if size > int64(^uint(0)>>1) {
		return nil, nil, fmt.Errorf("mmfile: file too large to map (%d bytes)", size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	unmap := munmapOnce(data)
	cleanup := func() error {
		err := unmap()
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		return err
	}
	return data, cleanup, nil
}

// Sync flushes a mapped region to its backing store.
func Sync(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Msync(data, unix.MS_SYNC)
}

// munmapOnce wraps Munmap so that a second call from a cleanup path is a
// no-op instead of an EINVAL.
func munmapOnce(data []byte) func() error {
	done := false
	return func() error {
		if done || data == nil {
			return nil
		}
		done = true
		return unix.Munmap(data)
	}
}
