/*
Package unicache provides a content-addressed, block-deduplicated local
file cache.

It stores arbitrarily many logical files while physically keeping each
unique fixed-size block only once, and reconstructs any cached file on
demand. Workloads with heavy inter-file redundancy (model snapshots,
dataset tarballs, build artifacts) typically see a 2-10x
physical-to-logical storage ratio.

# Layout

A cache is a directory with two artifacts:

  - blocks.bin - the raw bytes of every unique block, append-only
  - index.json - block and file records, pretty-printed JSON

Files are split into fixed-size blocks (the last may be shorter), each
block is addressed by its BLAKE3-256 digest, and a reference count tracks
how many cached files use it. Removing a file only drops references;
space held by dead blocks is not reclaimed.

# Basic Usage

Opening a cache:

	cache, err := unicache.Open(".unicache")
	if err != nil {
	    log.Fatalf("failed to open cache: %v", err)
	}
	defer cache.Close()

Storing and retrieving a file:

	id, err := cache.StoreFile("model.bin", "")
	if err != nil {
	    log.Fatalf("store failed: %v", err)
	}

	if err := cache.RetrieveFile(id, "model-copy.bin"); err != nil {
	    log.Fatalf("retrieve failed: %v", err)
	}

Inspecting deduplication:

	st := cache.Stats()
	fmt.Printf("%d blocks, %d files, ratio %.2fx\n",
	    st.Blocks, st.Files, st.DedupRatio())

# Errors

Operations fail with sentinel errors checked via errors.Is: ErrNotFound,
ErrAlreadyExists, ErrCorrupt, ErrInvalidArgument. Any other error wraps
an underlying filesystem failure.

# Concurrency

A Cache serializes all operations on a single mutex and owns its
directory exclusively; two instances must not target the same directory
concurrently.
*/
package unicache
