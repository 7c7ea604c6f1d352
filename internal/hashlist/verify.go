package hashlist

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
)

// Discrepancy is one verification failure: what the hashlist promised
// against what the directory holds. A missing file has a Nonexistent
// actual side; a file absent from the hashlist has a Nonexistent
// expected side.
type Discrepancy struct {
	Path     string
	Expected FileHashItem
	Actual   FileHashItem
}

// Verify checks a directory against a hashlist. With ignoreMissing,
// files listed but absent are not errors; with ignoreNew, files present
// but unlisted are not errors.
func Verify(dir string, list HashList, ignoreNew, ignoreMissing bool) ([]Discrepancy, error) {
	var out []Discrepancy
	seen := make(map[string]bool, len(list.Files))

	for _, entry := range list.Files {
		seen[entry.Path] = true
		path := filepath.Join(dir, filepath.FromSlash(entry.Path))
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if !ignoreMissing {
					out = append(out, Discrepancy{
						Path:     entry.Path,
						Expected: entry,
						Actual:   Nonexistent(""),
					})
				}
				continue
			}
			return nil, err
		}
		hash, err := HashFile(path)
		if err != nil {
			return nil, err
		}
		actual := FileHashItem{Path: entry.Path, Size: uint64(info.Size()), Hash: hash}
		if actual.Size != entry.Size || !bytes.Equal(actual.Hash, entry.Hash) {
			out = append(out, Discrepancy{Path: entry.Path, Expected: entry, Actual: actual})
		}
	}

	if !ignoreNew {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if seen[rel] {
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
			out = append(out, Discrepancy{
				Path:     rel,
				Expected: Nonexistent(rel),
				Actual:   FileHashItem{Path: rel, Size: uint64(info.Size()), Hash: hash},
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}
