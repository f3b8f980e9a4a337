package unicache

import (
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
)

const (
	blocksFileName = "blocks.bin"
	indexFileName  = "index.json"

	// DefaultBlockSize is the block size used for fresh caches when no
	// explicit size is configured.
	DefaultBlockSize = 1 << 20
)

// Cache is a content-addressed, block-deduplicated local file cache. It
// stores arbitrarily many logical files while keeping each unique block
// only once, and reconstructs any cached file on demand.
//
// A Cache owns its directory exclusively: two instances must not target
// the same directory at the same time. A single instance is safe for
// concurrent use; all public operations serialize on one mutex.
type Cache struct {
	dir        string
	fs         afero.Fs
	blockSize  int // requested; the persisted size wins on existing caches
	verify     bool
	httpClient *http.Client

	mu     sync.Mutex
	idx    *index
	blocks *blockFile
}

// Open opens or creates a cache directory. On a fresh directory the
// configured block size (DefaultBlockSize unless WithBlockSize is given)
// is fixed for the life of the cache; on an existing directory the
// persisted block size wins and the configured value is advisory.
func Open(dir string, options ...Option) (*Cache, error) {
	cache := &Cache{
		dir:        dir,
		fs:         afero.NewOsFs(),
		blockSize:  DefaultBlockSize,
		httpClient: http.DefaultClient,
	}

	for _, option := range options {
		option(cache)
	}

	if cache.blockSize <= 0 {
		return nil, fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidArgument, cache.blockSize)
	}

	if err := cache.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	idx, err := loadIndex(cache.fs, cache.indexPath(), cache.blockSize)
	if err != nil {
		return nil, err
	}

	blocks, err := openBlockFile(cache.fs, cache.blocksPath())
	if err != nil {
		return nil, err
	}

	cache.idx = idx
	cache.blocks = blocks
	return cache, nil
}

// OpenTemp creates an in-memory cache for testing.
func OpenTemp() *Cache {
	cache, err := Open("unicache-temp", WithFs(afero.NewMemMapFs()))
	if err != nil {
		panic(fmt.Sprintf("failed to create temp cache: %v", err))
	}
	return cache
}

// BlockSize returns the effective block size of the cache directory.
func (c *Cache) BlockSize() int {
	return c.idx.blockSize
}

// Exists reports whether a file id is present in the cache.
func (c *Cache) Exists(fileID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.idx.files[fileID]
	return ok
}

// ListFiles returns the ids of all cached files, sorted.
func (c *Cache) ListFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.idx.files))
	for id := range c.idx.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RemoveFile removes a cached file, dropping one reference from each of
// its blocks. Blocks whose refcount reaches zero are forgotten; their
// bytes remain in the block file as dead space.
func (c *Cache) RemoveFile(fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fr, err := c.idx.unregisterFile(fileID)
	if err != nil {
		return err
	}
	for _, d := range fr.Blocks {
		if err := c.idx.releaseBlock(d); err != nil {
			return err
		}
	}
	return c.saveIndex()
}

// Flush persists the index document.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.saveIndex()
}

// Close persists the index and releases the block file handle.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.saveIndex(); err != nil {
		return err
	}
	return c.blocks.close()
}

// saveIndex persists the index. Callers must hold c.mu.
func (c *Cache) saveIndex() error {
	return c.idx.save(c.fs, c.indexPath())
}

func (c *Cache) blocksPath() string {
	return filepath.Join(c.dir, blocksFileName)
}

func (c *Cache) indexPath() string {
	return filepath.Join(c.dir, indexFileName)
}
