package cnc

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// MappedCncRegion owns a memory-mapped view of the CnC file. It
// guarantees unmap happens at most once, on every exit path including
// handshake failure (spec §3 invariant (ii), §9 "scoped acquisition").
type MappedCncRegion struct {
	file     *os.File
	data     []byte
	closeMu  sync.Mutex
	unmapped bool
}

// OpenAndMap opens path read-write and memory-maps the first length
// bytes of it. The command ring lives inside this region and is
// written to by application threads, so the mapping must be writable,
// not read-only.
func OpenAndMap(path string, length int64) (*MappedCncRegion, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open cnc file: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap cnc file: %w", err)
	}

	return &MappedCncRegion{file: f, data: data}, nil
}

// Bytes returns the mapped region. Callers must not retain slices into
// it past Close.
func (r *MappedCncRegion) Bytes() []byte {
	return r.data
}

// Close unmaps the region and closes the underlying file handle.
// Idempotent: a second call is a safe no-op, matching spec.md §8's
// "idempotence of close()" testable property one level down from the
// facade.
func (r *MappedCncRegion) Close() error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()

	if r.unmapped {
		return nil
	}
	r.unmapped = true

	var err error
	if r.data != nil {
		err = unix.Munmap(r.data)
		r.data = nil
	}
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
		r.file = nil
	}
	return err
}
