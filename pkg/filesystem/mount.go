package filesystem

import (
	"github.com/rudelblinken/firmware/internal/logger"
	"github.com/rudelblinken/firmware/pkg/vfile"
)

// scan walks every block-aligned offset from the persisted first_block
// pointer (0 if none was saved), wrapping modulo block count, looking for
// a valid metadata marker. A hit is wrapped in a Weak catalog entry and
// the scan jumps past its reserved blocks; a miss advances by a single
// block. The walk stops once it has covered every block exactly once, so
// mount time is O(block count) regardless of how many files exist.
func (fs *Filesystem) scan() error {
	blockSize := fs.store.BlockSize()
	blockCount := fs.store.BlockCount()

	start := fs.loadFirstBlock()
	fs.firstBlock = start

	block := start
	visited := 0
	for visited < blockCount {
		addr := block * blockSize
		raw, err := fs.store.Read(addr, vfile.MetadataSize)
		if err != nil {
			return err
		}
		meta, err := vfile.UnmarshalMetadata(raw)
		if err != nil {
			return err
		}
		if !meta.ValidMarker() {
			block = (block + 1) % blockCount
			visited++
			continue
		}

		lengthBlocks := blocksForContent(blockSize, int(meta.Length))
		contentAddr := addr + vfile.MetadataSize
		entry := vfile.OpenEntry(fs.store, meta, addr, contentAddr)
		fs.catalog = append(fs.catalog, vfile.NewWeak(entry))

		block = (block + lengthBlocks) % blockCount
		visited += lengthBlocks
	}
	return nil
}

// reclaimStale erases any catalog entry that cannot be revived on this
// boot: DELETED set but blocks never actually erased (a crash between
// MarkDeleted and the physical erase), READY never set (a crash or
// cancellation mid-upload; no Writer survives a reboot, so the content
// can never be completed), or MARKED_FOR_DELETION with the strong count
// necessarily zero after a reboot. None of these entries can ever be
// upgraded, so reclaiming them at mount time is always safe.
func (fs *Filesystem) reclaimStale() error {
	remaining := fs.catalog[:0]
	for _, w := range fs.catalog {
		e := w.Entry()
		m := e.Metadata()
		if m.Deleted() || !m.Ready() || m.MarkedForDeletion() {
			if err := fs.eraseEntry(e); err != nil {
				return err
			}
			e.Invalidate()
			w.Close()
			continue
		}
		remaining = append(remaining, w)
	}
	fs.catalog = remaining
	return nil
}

// eraseEntry resets every block reserved by e back to the erased state.
func (fs *Filesystem) eraseEntry(e *vfile.Entry) error {
	blockSize := fs.store.BlockSize()
	blockCount := fs.store.BlockCount()
	m := e.Metadata()

	startBlock := e.MetaAddr() / blockSize
	lengthBlocks := blocksForContent(blockSize, int(m.Length))
	for i := 0; i < lengthBlocks; i++ {
		block := (startBlock + i) % blockCount
		if err := fs.store.Erase(block); err != nil {
			return err
		}
	}
	return nil
}

// loadFirstBlock returns the persisted scan-start block, or 0 if none was
// ever saved (a fresh or factory-erased medium).
func (fs *Filesystem) loadFirstBlock() int {
	raw, err := fs.store.ReadMetadata(firstBlockKey)
	if err != nil || len(raw) != 4 {
		return 0
	}
	return int(raw[0]) | int(raw[1])<<8 | int(raw[2])<<16 | int(raw[3])<<24
}

// fixFirstBlock persists the block a future mount scan should start from,
// but only the first time it is called after a mount: first_block is
// fixed by the first successful allocation and never moves again for the
// rest of that mount's lifetime (see DESIGN.md for why this reading of
// an ambiguous original behavior was chosen).
func (fs *Filesystem) fixFirstBlock(block int) {
	if fs.firstBlockFixed {
		return
	}
	fs.firstBlock = block
	fs.firstBlockFixed = true
	raw := []byte{byte(block), byte(block >> 8), byte(block >> 16), byte(block >> 24)}
	if err := fs.store.WriteMetadata(firstBlockKey, raw); err != nil {
		logger.Warn("failed to persist filesystem scan pointer", logger.Err(err))
	}
}
