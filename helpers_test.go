package unicache

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/afero"
)

// newTestCache creates a cache over an in-memory filesystem and returns
// both, so tests can reopen the same filesystem or inspect artifacts.
func newTestCache(t *testing.T, options ...Option) (*Cache, afero.Fs) {
	t.Helper()

	memFs := afero.NewMemMapFs()
	options = append([]Option{WithFs(memFs)}, options...)
	cache, err := Open("cache", options...)
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	return cache, memFs
}

func writeTestFile(t *testing.T, fs afero.Fs, path string, content []byte) {
	t.Helper()

	if err := afero.WriteFile(fs, path, content, 0o644); err != nil {
		t.Fatalf("Failed to write test file %s: %v", path, err)
	}
}

// storeBytes stores content under id via a temp file on the cache's
// filesystem, returning the id the cache assigned.
func storeBytes(t *testing.T, cache *Cache, fs afero.Fs, path string, content []byte, id string) string {
	t.Helper()

	writeTestFile(t, fs, path, content)
	fileID, err := cache.StoreFile(path, id)
	if err != nil {
		t.Fatalf("Failed to store %s: %v", path, err)
	}
	return fileID
}

// retrieveBytes retrieves id to a path on the cache's filesystem and
// returns the reconstructed bytes.
func retrieveBytes(t *testing.T, cache *Cache, fs afero.Fs, id, dest string) []byte {
	t.Helper()

	if err := cache.RetrieveFile(id, dest); err != nil {
		t.Fatalf("Failed to retrieve %s: %v", id, err)
	}
	data, err := afero.ReadFile(fs, dest)
	if err != nil {
		t.Fatalf("Failed to read retrieved file %s: %v", dest, err)
	}
	return data
}

func assertStats(t *testing.T, cache *Cache, blocks, files int, physical, logical uint64) {
	t.Helper()

	st := cache.Stats()
	if st.Blocks != blocks {
		t.Errorf("Blocks = %d, want %d", st.Blocks, blocks)
	}
	if st.Files != files {
		t.Errorf("Files = %d, want %d", st.Files, files)
	}
	if st.PhysicalBytes != physical {
		t.Errorf("PhysicalBytes = %d, want %d", st.PhysicalBytes, physical)
	}
	if st.LogicalBytes != logical {
		t.Errorf("LogicalBytes = %d, want %d", st.LogicalBytes, logical)
	}
}

func assertErrIs(t *testing.T, err, want error, context string) {
	t.Helper()

	if err == nil {
		t.Fatalf("%s: expected error %v, got nil", context, want)
	}
	if !errors.Is(err, want) {
		t.Fatalf("%s: expected error %v, got %v", context, want, err)
	}
}

func assertBytesEqual(t *testing.T, got, want []byte, context string) {
	t.Helper()

	if !bytes.Equal(got, want) {
		t.Fatalf("%s: content mismatch: got %d bytes, want %d bytes", context, len(got), len(want))
	}
}

// patternBytes builds deterministic test content of the given length.
func patternBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// repeatBytes builds n bytes all holding b.
func repeatBytes(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}
