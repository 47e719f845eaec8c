package kind

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tracealloc/tracealloc/internal/freelist"
	"github.com/tracealloc/tracealloc/internal/mmfile"
)

// Pool is a kind backed by a file-backed memory pool of fixed capacity,
// such as a DAX-mounted persistent-memory directory. Exhaustion surfaces
// as a zero address; the pool never grows past its configured size.
type Pool struct {
	heap    *freelist.Heap
	path    string
	data    []byte
	cleanup func() error
}

// NewPool creates the pool file under dir, sizes it to size bytes, maps
// it read-write and runs a free-list heap over the mapping.
func NewPool(dir string, size uintptr) (*Pool, error) {
	f, err := os.CreateTemp(dir, "trac_pmem_*")
	if err != nil {
		return nil, fmt.Errorf("kind: create pool file: %w", err)
	}
	path := f.Name()
	f.Close()

	data, cleanup, err := mmfile.MapFile(path, int64(size))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("kind: map pool file: %w", err)
	}
	return &Pool{
		heap:    freelist.NewFixed(data),
		path:    path,
		data:    data,
		cleanup: cleanup,
	}, nil
}

// Name returns the pool identity used in diagnostics.
func (p *Pool) Name() string {
	return "pmem:" + filepath.Base(p.path)
}

func (p *Pool) Malloc(size uintptr) uintptr {
	return p.heap.Malloc(size)
}

func (p *Pool) Calloc(count, unit uintptr) uintptr {
	return p.heap.Calloc(count, unit)
}

func (p *Pool) Memalign(bound, size uintptr) (uintptr, error) {
	return p.heap.Memalign(bound, size)
}

func (p *Pool) Realloc(ptr, size uintptr) uintptr {
	return p.heap.Realloc(ptr, size)
}

func (p *Pool) Free(ptr uintptr) {
	p.heap.Free(ptr)
}

// Sync flushes the pool mapping to its file.
func (p *Pool) Sync() error {
	return mmfile.Sync(p.data)
}

// Close unmaps the pool and removes its file.
func (p *Pool) Close() error {
	err := p.heap.Close()
	if cleanupErr := p.cleanup(); err == nil {
		err = cleanupErr
	}
	if rmErr := os.Remove(p.path); err == nil {
		err = rmErr
	}
	return err
}
