package unicache

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// digestSize is the length in bytes of a block digest.
const digestSize = 32

// Digest is the BLAKE3-256 content address of a block.
// Its canonical text form is lowercase hex, 64 characters.
type Digest [digestSize]byte

// sumBlock computes the content address of a block of bytes.
func sumBlock(p []byte) Digest {
	return blake3.Sum256(p)
}

// emptyDigest is the digest of the empty byte string. It serves as the
// derived file id for zero-length inputs.
var emptyDigest = sumBlock(nil)

// String returns the lowercase hex representation of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// parseDigest decodes the lowercase hex form of a digest.
func parseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != hex.EncodedLen(digestSize) {
		return d, fmt.Errorf("%w: digest %q has length %d, want %d", ErrInvalidArgument, s, len(s), hex.EncodedLen(digestSize))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("%w: digest %q is not hex: %v", ErrInvalidArgument, s, err)
	}
	return d, nil
}
