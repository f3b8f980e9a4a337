package unicache

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// blockRecord locates one unique block inside the block file and counts
// its references. A record exists exactly while its refcount is positive;
// offset and size never change after insertion.
type blockRecord struct {
	Offset   uint64
	Size     uint32
	RefCount uint32
}

// fileRecord describes one cached logical file as an ordered list of
// block digests. Concatenating the referenced blocks yields exactly Size
// bytes.
type fileRecord struct {
	Name   string
	Size   uint64
	Blocks []Digest
}

// index holds the cache's two in-memory maps plus the block size the
// cache directory was created with.
type index struct {
	blockSize int
	blocks    map[Digest]*blockRecord
	files     map[string]*fileRecord
}

func newIndex(blockSize int) *index {
	return &index{
		blockSize: blockSize,
		blocks:    make(map[Digest]*blockRecord),
		files:     make(map[string]*fileRecord),
	}
}

func (ix *index) hasBlock(d Digest) bool {
	_, ok := ix.blocks[d]
	return ok
}

// insertBlockRef records one more reference to digest d. When the digest
// is unseen, a new record is created at the given location with refcount
// one; otherwise the existing record's refcount is incremented and the
// offset and size arguments are ignored. Reports whether the record was
// newly created.
func (ix *index) insertBlockRef(d Digest, offset uint64, size uint32) bool {
	if rec, ok := ix.blocks[d]; ok {
		rec.RefCount++
		return false
	}
	ix.blocks[d] = &blockRecord{Offset: offset, Size: size, RefCount: 1}
	return true
}

// releaseBlock drops one reference to digest d, removing the record when
// the refcount reaches zero. The block's bytes stay in the block file as
// dead space.
func (ix *index) releaseBlock(d Digest) error {
	rec, ok := ix.blocks[d]
	if !ok {
		return fmt.Errorf("%w: block %s", ErrNotFound, d)
	}
	rec.RefCount--
	if rec.RefCount == 0 {
		delete(ix.blocks, d)
	}
	return nil
}

func (ix *index) registerFile(id string, fr *fileRecord) error {
	if _, ok := ix.files[id]; ok {
		return fmt.Errorf("%w: file id %q", ErrAlreadyExists, id)
	}
	ix.files[id] = fr
	return nil
}

func (ix *index) lookupFile(id string) (*fileRecord, error) {
	fr, ok := ix.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: file id %q", ErrNotFound, id)
	}
	return fr, nil
}

func (ix *index) unregisterFile(id string) (*fileRecord, error) {
	fr, ok := ix.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: file id %q", ErrNotFound, id)
	}
	delete(ix.files, id)
	return fr, nil
}

// indexDoc is the persisted form of the index. Field names are stable;
// unknown fields are ignored on load so future versions can add to the
// document.
type indexDoc struct {
	BlockSize int                       `json:"block_size"`
	Blocks    map[string]blockRecordDoc `json:"blocks"`
	Files     map[string]fileRecordDoc  `json:"files"`
}

type blockRecordDoc struct {
	Offset   uint64 `json:"offset"`
	Size     uint32 `json:"size"`
	RefCount uint32 `json:"ref_count"`
}

type fileRecordDoc struct {
	Name   string   `json:"name"`
	Size   uint64   `json:"size"`
	Blocks []string `json:"blocks"`
}

// save writes the index document to path. The document is pretty-printed
// for human inspection.
func (ix *index) save(fs afero.Fs, path string) error {
	doc := indexDoc{
		BlockSize: ix.blockSize,
		Blocks:    make(map[string]blockRecordDoc, len(ix.blocks)),
		Files:     make(map[string]fileRecordDoc, len(ix.files)),
	}
	for d, rec := range ix.blocks {
		doc.Blocks[d.String()] = blockRecordDoc{Offset: rec.Offset, Size: rec.Size, RefCount: rec.RefCount}
	}
	for id, fr := range ix.files {
		blocks := make([]string, len(fr.Blocks))
		for i, d := range fr.Blocks {
			blocks[i] = d.String()
		}
		doc.Files[id] = fileRecordDoc{Name: fr.Name, Size: fr.Size, Blocks: blocks}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// loadIndex reads the index document at path. A missing file is a fresh
// cache and yields an empty index with the requested block size. When the
// file exists its persisted block size wins over the requested one; the
// caller's value is advisory.
func loadIndex(fs afero.Fs, path string, blockSize int) (*index, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return newIndex(blockSize), nil
		}
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed index %s: %v", ErrInvalidArgument, path, err)
	}
	if doc.BlockSize <= 0 {
		return nil, fmt.Errorf("%w: index %s has block size %d", ErrInvalidArgument, path, doc.BlockSize)
	}

	ix := newIndex(doc.BlockSize)
	for hexDigest, rec := range doc.Blocks {
		d, err := parseDigest(hexDigest)
		if err != nil {
			return nil, err
		}
		ix.blocks[d] = &blockRecord{Offset: rec.Offset, Size: rec.Size, RefCount: rec.RefCount}
	}
	for id, frd := range doc.Files {
		fr := &fileRecord{Name: frd.Name, Size: frd.Size, Blocks: make([]Digest, len(frd.Blocks))}
		for i, hexDigest := range frd.Blocks {
			d, err := parseDigest(hexDigest)
			if err != nil {
				return nil, err
			}
			fr.Blocks[i] = d
		}
		ix.files[id] = fr
	}
	return ix, nil
}
