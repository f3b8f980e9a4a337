package unicache

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// blockFile is the append-only byte store backing the cache. It holds the
// raw bytes of every unique block, addressed by offset and length, and
// knows nothing of hashing or indexing.
type blockFile struct {
	f afero.File
}

func openBlockFile(fs afero.Fs, path string) (*blockFile, error) {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open block file: %w", err)
	}
	return &blockFile{f: f}, nil
}

// append writes p at the end of the file and returns the offset at which
// it begins. The bytes are readable at that offset as soon as append
// returns.
func (bf *blockFile) append(p []byte) (uint64, error) {
	off, err := bf.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to seek block file: %w", err)
	}
	if _, err := bf.f.Write(p); err != nil {
		return 0, fmt.Errorf("failed to append block: %w", err)
	}
	return uint64(off), nil
}

// readAt returns exactly length bytes starting at offset. A range that is
// not fully present means the index references bytes the block file never
// received, which is corruption, not an I/O failure.
//
// Reads loop until the buffer fills: not every afero backend honors the
// io.ReaderAt full-read contract.
func (bf *blockFile) readAt(offset uint64, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	for total := 0; total < len(buf); {
		n, err := bf.f.ReadAt(buf[total:], int64(offset)+int64(total))
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: block range [%d, %d) lies beyond the block file", ErrCorrupt, offset, offset+uint64(length))
			}
			return nil, fmt.Errorf("failed to read block at offset %d: %w", offset, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: block range [%d, %d) lies beyond the block file", ErrCorrupt, offset, offset+uint64(length))
		}
	}
	return buf, nil
}

func (bf *blockFile) size() (uint64, error) {
	info, err := bf.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat block file: %w", err)
	}
	return uint64(info.Size()), nil
}

func (bf *blockFile) close() error {
	return bf.f.Close()
}
