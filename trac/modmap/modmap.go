// Package modmap maintains a snapshot of the process's file-backed
// mappings and resolves virtual addresses to stable (module, offset)
// pairs for trace records.
//
// Modules are identified by pathname; each pathname keeps the dense id it
// was assigned at first sight across refreshes, so addresses stay
// comparable over the life of the process. Id 0 is reserved for addresses
// that no known mapping covers.
package modmap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LibAddr names a program location independent of load address: the
// offset within module Module, or the raw virtual address when Module is
// 0.
type LibAddr struct {
	Module uint64
	Offset uintptr
}

// Entry is one mapped segment of a module.
type Entry struct {
	Module     uint64
	Base       uintptr
	Size       uintptr
	FileOffset uintptr
}

// Mappings is the process-wide segment index. Access goes through the
// package-level Update/Lookup/End, which guard the singleton with one
// read-write lock.
type Mappings struct {
	libs    map[string]uint64
	entries []Entry // sorted by Base
	log     *os.File
}

var (
	instance *Mappings
	lock     sync.RWMutex
)

// mapsPath is a variable so tests can point the parser at a fixture.
var mapsPath = "/proc/self/maps"

// Update rebuilds the segment index from the currently mapped objects,
// creating the instance on first use. Module ids already assigned are
// preserved.
func Update() {
	lock.Lock()
	defer lock.Unlock()
	if instance == nil {
		instance = newMappings()
	}
	instance.update()
}

// Lookup resolves vaddr against the current snapshot, building it first
// if no refresh has happened yet. The cold path drops the read lock and
// upgrades to the write lock with a re-check.
func Lookup(vaddr uintptr) LibAddr {
	lock.RLock()
	if instance != nil {
		la := instance.lookup(vaddr)
		lock.RUnlock()
		return la
	}
	lock.RUnlock()

	lock.Lock()
	defer lock.Unlock()
	if instance == nil {
		instance = newMappings()
		instance.update()
	}
	return instance.lookup(vaddr)
}

// End releases the instance and closes the map log.
func End() {
	lock.Lock()
	defer lock.Unlock()
	if instance != nil {
		instance.close()
		instance = nil
	}
}

func newMappings() *Mappings {
	m := &Mappings{libs: make(map[string]uint64)}
	if logpath := os.Getenv("TRAC_LOGPATH"); logpath != "" {
		f, err := os.Create(filepath.Join(logpath, "maps.log"))
		if err == nil {
			m.log = f
		}
	}
	return m
}

// update discards the segment index and re-reads the maps file. Stale
// entries are never retained; the name table is.
func (m *Mappings) update() {
	m.entries = m.entries[:0]
	data, err := os.ReadFile(mapsPath)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		entry, ok := m.parseLine(line)
		if ok {
			m.entries = append(m.entries, entry)
		}
	}
	sort.Slice(m.entries, func(i, j int) bool {
		return m.entries[i].Base < m.entries[j].Base
	})
}

// parseLine decodes one maps line of the form
//
//	start-end perms offset dev inode pathname
//
// Only file-backed segments contribute entries; anonymous and
// pseudo-path ([heap], [stack], ...) mappings resolve to module 0.
func (m *Mappings) parseLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return Entry{}, false
	}
	name := fields[5]
	if !strings.HasPrefix(name, "/") {
		return Entry{}, false
	}
	var start, end, offset uint64
	if _, err := fmt.Sscanf(fields[0], "%x-%x", &start, &end); err != nil {
		return Entry{}, false
	}
	if _, err := fmt.Sscanf(fields[2], "%x", &offset); err != nil {
		return Entry{}, false
	}
	return Entry{
		Module:     m.moduleID(name),
		Base:       uintptr(start),
		Size:       uintptr(end - start),
		FileOffset: uintptr(offset),
	}, true
}

// moduleID returns the dense id for a pathname, assigning the next id and
// logging the pathname at first sight. Ids are monotone and never
// reassigned.
func (m *Mappings) moduleID(name string) uint64 {
	if id, ok := m.libs[name]; ok {
		return id
	}
	id := uint64(len(m.libs)) + 1
	m.libs[name] = id
	if m.log != nil {
		fmt.Fprintf(m.log, "%d: %s\n", id, name)
	}
	return id
}

// lookup finds the segment covering vaddr by predecessor search.
func (m *Mappings) lookup(vaddr uintptr) LibAddr {
	idx := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].Base > vaddr
	})
	if idx == 0 {
		return LibAddr{Module: 0, Offset: vaddr}
	}
	e := m.entries[idx-1]
	rel := vaddr - e.Base
	if rel >= e.Size {
		return LibAddr{Module: 0, Offset: vaddr}
	}
	return LibAddr{Module: e.Module, Offset: e.FileOffset + rel}
}

func (m *Mappings) close() {
	if m.log != nil {
		m.log.Close()
		m.log = nil
	}
}
