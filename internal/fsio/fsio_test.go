package fsio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestAllocateCreatesNestedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "deeper", "file.bin")

	if err := Allocate(path, 4096); err != nil {
		t.Fatal(err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() != 4096 {
		t.Errorf("size = %d, want 4096", st.Size())
	}
}

func TestWriteChunkPlacesData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	if err := Allocate(path, 1500); err != nil {
		t.Fatal(err)
	}

	chunk1 := bytes.Repeat([]byte{0xAB}, 512)
	if err := WriteChunk(path, 512, 1, chunk1); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got[512:1024], chunk1) {
		t.Error("chunk 1 not written at offset 512")
	}
	for _, b := range got[:512] {
		if b != 0 {
			t.Fatal("bytes before the chunk were touched")
		}
	}
}

func TestWriteChunkOutOfBoundsIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	if err := Allocate(path, 100); err != nil {
		t.Fatal(err)
	}

	if err := WriteChunk(path, 512, 9, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() != 100 {
		t.Errorf("size = %d after out-of-bounds write, want 100", st.Size())
	}
}

func TestReadChunkTailAndBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	content := make([]byte, 1500)
	for i := range content {
		content[i] = byte(i)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cache := NewMmapCache()
	defer cache.Close()

	full, err := cache.ReadChunk(path, 512, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(full, content[:512]) {
		t.Error("chunk 0 mismatch")
	}

	tail, err := cache.ReadChunk(path, 512, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 1500-1024 {
		t.Errorf("tail chunk is %d bytes, want %d", len(tail), 1500-1024)
	}
	if !bytes.Equal(tail, content[1024:]) {
		t.Error("tail chunk mismatch")
	}

	past, err := cache.ReadChunk(path, 512, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(past) != 0 {
		t.Errorf("chunk past EOF is %d bytes, want empty", len(past))
	}
}

func TestReadChunkEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	cache := NewMmapCache()
	defer cache.Close()
	data, err := cache.ReadChunk(path, 512, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("empty file chunk is %d bytes, want empty", len(data))
	}
}
