package unicache

import (
	"io"

	boxochunker "github.com/ipfs/boxo/chunker"
)

// chunker splits a byte stream into fixed-size blocks. Every block has
// exactly the configured length except the last, which may be shorter.
// An empty stream yields no blocks.
type chunker struct {
	splitter boxochunker.Splitter
}

func newChunker(r io.Reader, blockSize int) *chunker {
	return &chunker{
		splitter: boxochunker.NewSizeSplitter(r, int64(blockSize)),
	}
}

// next returns the next block, or io.EOF when the stream is exhausted.
func (c *chunker) next() ([]byte, error) {
	return c.splitter.NextBytes()
}
