package filesystem

import "github.com/rudelblinken/firmware/pkg/vfile"

// occupiedRing builds the block-occupancy ring from the current catalog:
// every entry that still reserves space (live, whether or not it has
// been marked for deletion) has its blocks marked occupied.
func (fs *Filesystem) occupiedRing() []bool {
	blockSize := fs.store.BlockSize()
	blockCount := fs.store.BlockCount()
	occupied := make([]bool, blockCount)

	for _, w := range fs.catalog {
		e := w.Entry()
		m := e.Metadata()
		if m.Deleted() {
			continue
		}
		startBlock := e.MetaAddr() / blockSize
		lengthBlocks := blocksForContent(blockSize, int(m.Length))
		markOccupied(occupied, startBlock, lengthBlocks, blockCount)
	}
	return occupied
}

// blocksForContent returns the number of whole blocks needed to hold a
// file's 64-byte metadata record plus contentLength bytes of content.
func blocksForContent(blockSize, contentLength int) int {
	return (contentLength + vfile.MetadataSize + blockSize - 1) / blockSize
}

// findFreeSpace locates the longest free block range and returns the
// byte address at which a new file's metadata record should begin. The
// chosen range may wrap around the end of storage back to block 0; the
// vfile.Entry addressing layer already accounts for that when reading
// and writing content.
func (fs *Filesystem) findFreeSpace(contentLength int) (int, error) {
	blockSize := fs.store.BlockSize()
	needed := blocksForContent(blockSize, contentLength)

	ranges := ringFreeRanges(fs.occupiedRing())
	if len(ranges) == 0 {
		return 0, ErrNoFreeSpace
	}

	best := ranges[0]
	for _, r := range ranges[1:] {
		if r.Length > best.Length {
			best = r
		}
	}
	if best.Length < needed {
		return 0, ErrNotEnoughSpace
	}
	return best.Start * blockSize, nil
}
