package unicache

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
)

// StoreFile stores the file at path under fileID. An empty fileID derives
// the id from the content: the first block's digest, or the empty-string
// digest for a zero-length file. Returns the id the file was stored
// under.
func (c *Cache) StoreFile(path, fileID string) (string, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return c.StoreReader(f, filepath.Base(path), fileID)
}

// StoreReader stores the bytes of r under fileID, recording name as the
// file's display name. See StoreFile for id derivation.
//
// Blocks are streamed: each chunk is hashed, appended to the block file
// if its digest is unseen, and reference-counted. The index is persisted
// only after the file record is registered, so a crash mid-store leaves
// at most dead bytes in the block file and no index change.
func (c *Cache) StoreReader(r io.Reader, name, fileID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		blockList []Digest
		logical   uint64
	)

	ch := newChunker(r, c.idx.blockSize)
	for {
		chunk, err := ch.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.releaseBlocks(blockList)
			return "", fmt.Errorf("failed to read input: %w", err)
		}

		d := sumBlock(chunk)
		if !c.idx.hasBlock(d) {
			// Bytes go in before the record referencing them exists.
			off, err := c.blocks.append(chunk)
			if err != nil {
				c.releaseBlocks(blockList)
				return "", err
			}
			c.idx.insertBlockRef(d, off, uint32(len(chunk)))
		} else {
			c.idx.insertBlockRef(d, 0, 0)
		}

		blockList = append(blockList, d)
		logical += uint64(len(chunk))
	}

	id := fileID
	if id == "" {
		if len(blockList) > 0 {
			id = blockList[0].String()
		} else {
			id = emptyDigest.String()
		}
	}

	fr := &fileRecord{Name: name, Size: logical, Blocks: blockList}
	if err := c.idx.registerFile(id, fr); err != nil {
		// Undo this store's refcount changes. Bytes already appended for
		// blocks that drop to zero stay in the block file as dead space.
		c.releaseBlocks(blockList)
		return "", err
	}

	if err := c.saveIndex(); err != nil {
		return "", err
	}
	return id, nil
}

// releaseBlocks drops one reference from each digest in order, undoing
// the refcount changes of an aborted store. Callers must hold c.mu.
func (c *Cache) releaseBlocks(blockList []Digest) {
	for _, d := range blockList {
		_ = c.idx.releaseBlock(d)
	}
}
