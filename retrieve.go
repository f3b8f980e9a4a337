package unicache

import (
	"fmt"
)

// RetrieveFile reconstructs the cached file fileID at destPath, creating
// or truncating the destination. Retrieval is read-only with respect to
// the cache.
func (c *Cache) RetrieveFile(fileID, destPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fr, err := c.idx.lookupFile(fileID)
	if err != nil {
		return err
	}

	out, err := c.fs.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer out.Close()

	var written uint64
	for _, d := range fr.Blocks {
		rec, ok := c.idx.blocks[d]
		if !ok {
			return fmt.Errorf("%w: file %q references unknown block %s", ErrCorrupt, fileID, d)
		}

		chunk, err := c.blocks.readAt(rec.Offset, rec.Size)
		if err != nil {
			return err
		}
		if c.verify {
			if got := sumBlock(chunk); got != d {
				return fmt.Errorf("%w: block %s read back with digest %s", ErrCorrupt, d, got)
			}
		}

		if _, err := out.Write(chunk); err != nil {
			return fmt.Errorf("failed to write %s: %w", destPath, err)
		}
		written += uint64(len(chunk))
	}

	if written != fr.Size {
		return fmt.Errorf("%w: retrieved %d bytes for file %q, want %d", ErrCorrupt, written, fileID, fr.Size)
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", destPath, err)
	}
	return nil
}
