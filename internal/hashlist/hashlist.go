// Package hashlist enumerates a shared directory into the ordered,
// hashed file list both ends of the protocol agree on. The serialized
// form is bytewise-stable across runs, so the server can reuse a
// precomputed hashlist instead of rehashing at startup.
package hashlist

import (
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"lancast/internal/wire"
)

// Algorithm is the only hash algorithm this implementation produces.
// Consumers of a loaded hashlist must check it.
const Algorithm = "sha256"

// DefaultChunkSize is how files are sliced for broadcast.
const DefaultChunkSize uint16 = 512

// HashList is the persisted description of a directory.
type HashList struct {
	HashAlgorithm string         `msgpack:"hash_algorithm"`
	Files         []FileHashItem `msgpack:"files"`
}

// FileHashItem records one file's relative path, size and hash.
type FileHashItem struct {
	Path string `msgpack:"path"`
	Size uint64 `msgpack:"size"`
	Hash []byte `msgpack:"hash"`
}

// Nonexistent describes a file that is not there: zero size, all-zero
// hash (distinct from the real hash of an empty file).
func Nonexistent(path string) FileHashItem {
	return FileHashItem{Path: path, Size: 0, Hash: make([]byte, wire.HashSize)}
}

// HashFile streams a file through SHA-256.
func HashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Walk hashes every entry under dir that is not a directory. Paths are relative to dir
// with forward slashes, in lexical walk order, so two walks of the same
// tree produce identical hashlists.
func Walk(dir string) (HashList, error) {
	list := HashList{HashAlgorithm: Algorithm}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hash, err := HashFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		list.Files = append(list.Files, FileHashItem{
			Path: filepath.ToSlash(rel),
			Size: uint64(info.Size()),
			Hash: hash,
		})
		return nil
	})
	if err != nil {
		return HashList{}, fmt.Errorf("walk %s: %w", dir, err)
	}
	return list, nil
}

// Save writes the hashlist in its stable msgpack form.
func Save(path string, list HashList) error {
	data, err := msgpack.Marshal(list)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a hashlist written by Save and checks the algorithm.
func Load(path string) (HashList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return HashList{}, err
	}
	var list HashList
	if err := msgpack.Unmarshal(data, &list); err != nil {
		return HashList{}, fmt.Errorf("parse hashlist %s: %w", path, err)
	}
	if list.HashAlgorithm != Algorithm {
		return HashList{}, fmt.Errorf("hashlist %s uses %q, only %q is supported", path, list.HashAlgorithm, Algorithm)
	}
	return list, nil
}

// Fragments turns a hashlist into the listing fragments the server
// broadcasts. Every fragment carries the same total and the shared
// chunk size.
func Fragments(list HashList, chunkSize uint16) ([]wire.FileListingFragment, error) {
	fragments := make([]wire.FileListingFragment, len(list.Files))
	for i, item := range list.Files {
		if len(item.Hash) != wire.HashSize {
			return nil, fmt.Errorf("file %s has a %d-byte hash, want %d", item.Path, len(item.Hash), wire.HashSize)
		}
		f := wire.FileListingFragment{
			Idx:       uint32(i),
			Total:     uint32(len(list.Files)),
			Path:      item.Path,
			Size:      item.Size,
			ChunkSize: chunkSize,
		}
		copy(f.Hash[:], item.Hash)
		fragments[i] = f
	}
	return fragments, nil
}
