package unicache

import "errors"

// Sentinel errors. Failures of the underlying filesystem are not wrapped
// in a sentinel; they surface verbatim via %w wrapping and can be
// distinguished by not matching any of these.
var (
	// ErrNotFound is returned when a file id is absent from the index.
	ErrNotFound = errors.New("file not found")

	// ErrAlreadyExists is returned when storing under a file id that is
	// already registered.
	ErrAlreadyExists = errors.New("file already exists")

	// ErrCorrupt is returned when an index invariant is violated at
	// runtime: a file references an unknown block, a block range lies
	// beyond the block file, or retrieved bytes do not add up to the
	// recorded size.
	ErrCorrupt = errors.New("cache corrupt")

	// ErrInvalidArgument is returned for a non-positive block size, an
	// undecodable digest, or a malformed index document.
	ErrInvalidArgument = errors.New("invalid argument")
)
