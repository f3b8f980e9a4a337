package unicache

import (
	"net/http"

	"github.com/spf13/afero"
)

// Option defines a function that configures a Cache.
type Option func(*Cache)

// WithFs sets a custom filesystem for the cache.
// This is primarily useful for testing with in-memory filesystems.
//
// Example:
//
//	cache, err := unicache.Open(".cache", unicache.WithFs(afero.NewMemMapFs()))
func WithFs(fs afero.Fs) Option {
	return func(c *Cache) {
		c.fs = fs
	}
}

// WithBlockSize sets the block size for fresh caches. Existing caches
// keep the block size they were created with regardless of this option.
func WithBlockSize(n int) Option {
	return func(c *Cache) {
		c.blockSize = n
	}
}

// WithVerifyOnRetrieve makes retrieval re-hash every block it reads and
// fail with ErrCorrupt on a mismatch. Off by default: it doubles the CPU
// cost of retrieval and only catches external damage to the block file.
func WithVerifyOnRetrieve() Option {
	return func(c *Cache) {
		c.verify = true
	}
}

// WithHTTPClient sets the HTTP client used by DownloadFile.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) {
		c.httpClient = client
	}
}
