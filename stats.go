package unicache

// Stats describes the live contents of a cache.
type Stats struct {
	Blocks        int    // Number of unique blocks
	Files         int    // Number of cached files
	PhysicalBytes uint64 // Bytes held in live blocks (dead space excluded)
	LogicalBytes  uint64 // Bytes read back by retrieving every file
}

// DedupRatio returns logical over physical bytes, or 1.0 when the cache
// holds no physical bytes.
func (s Stats) DedupRatio() float64 {
	if s.PhysicalBytes == 0 {
		return 1.0
	}
	return float64(s.LogicalBytes) / float64(s.PhysicalBytes)
}

// Stats returns statistics about the cache. Physical bytes count live
// deduplicated blocks, not the size of the block file on disk.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Blocks: len(c.idx.blocks),
		Files:  len(c.idx.files),
	}
	for _, rec := range c.idx.blocks {
		stats.PhysicalBytes += uint64(rec.Size)
	}
	for _, fr := range c.idx.files {
		stats.LogicalBytes += fr.Size
	}
	return stats
}
