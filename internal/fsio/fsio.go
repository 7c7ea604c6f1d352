// Package fsio holds the chunk-granular file operations: preallocating
// download targets, writing received chunks in place, and the server's
// memory-mapped chunk reads.
package fsio

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Allocate ensures the file exists with exactly length bytes, creating
// parent directories as needed. Downloads write into the allocation,
// so the size must be right before the first chunk lands.
func Allocate(path string, length uint64) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", path, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(int64(length))
}

// WriteChunk writes data at offset chunk*chunkSize. A chunk whose
// offset lies beyond the file is a no-op: the allocation fixed the
// size, anything past it is a stale or bogus request.
func WriteChunk(path string, chunkSize, chunk uint64, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	offset := chunk * chunkSize
	if offset >= uint64(st.Size()) {
		return nil
	}
	_, err = f.WriteAt(data, int64(offset))
	return err
}

// MmapCache maps served files once and keeps the mappings for the
// session. It belongs to a single task (the transmission scheduler)
// and is not safe for concurrent use.
type MmapCache struct {
	maps map[string][]byte
}

// NewMmapCache creates an empty cache.
func NewMmapCache() *MmapCache {
	return &MmapCache{maps: make(map[string][]byte)}
}

// ReadChunk returns a copy of the chunk's bytes. A chunk starting at or
// past the end of the file comes back empty; the final chunk may be
// shorter than chunkSize.
func (c *MmapCache) ReadChunk(path string, chunkSize, chunk uint64) ([]byte, error) {
	m, ok := c.maps[path]
	if !ok {
		var err error
		m, err = mapFile(path)
		if err != nil {
			return nil, err
		}
		c.maps[path] = m
	}
	offset := chunk * chunkSize
	if offset >= uint64(len(m)) {
		return nil, nil
	}
	end := offset + chunkSize
	if end > uint64(len(m)) {
		end = uint64(len(m))
	}
	out := make([]byte, end-offset)
	copy(out, m[offset:end])
	return out, nil
}

// Close unmaps everything.
func (c *MmapCache) Close() {
	for path, m := range c.maps {
		if len(m) > 0 {
			unix.Munmap(m)
		}
		delete(c.maps, path)
	}
}

func mapFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, nil
	}
	return unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
}
