// Package filesystem implements the catalog of files living on top of a
// single pkg/storage.Storage region: wrap-around, block-aligned
// allocation, mount-time recovery, and the deferred-reclamation lifecycle
// that keeps a file's blocks reserved for as long as any Reader is open.
//
// A Filesystem owns every vfile.Entry it creates or discovers; callers
// only ever see Reader/Writer/Weak handles, never raw addresses.
package filesystem

import (
	"sync"

	"github.com/rudelblinken/firmware/internal/logger"
	"github.com/rudelblinken/firmware/pkg/storage"
	"github.com/rudelblinken/firmware/pkg/vfile"
)

// firstBlockKey is the persistent side-channel key under which the
// mount-time starting block for the wrap-around scan is remembered. It
// sets where the next mount's scan begins, and so the order of the
// catalog; allocation does not use it (findFreeSpace always picks the
// longest free range, in block-index order).
const firstBlockKey = "filesystem.first_block"

// Filesystem is the mutex-guarded catalog of files on one Storage region.
// Every exported method takes the lock for its own duration; none of them
// call back into vfile while holding it across a blocking flash
// operation for longer than necessary, matching the module's documented
// lock order (callers above Filesystem must never call back down into it
// while holding one of its own locks).
type Filesystem struct {
	mu sync.Mutex

	store      storage.Storage
	catalog    []vfile.Weak
	firstBlock int

	// firstBlockFixed tracks the resolved reading of an ambiguity in the
	// original source (see DESIGN.md): first_block is only ever set once
	// per mount, on the first successful allocation, and never moved
	// again afterward, rather than tracking the most recent allocation.
	firstBlockFixed bool
}

// Mount scans store for existing file metadata and returns a ready
// Filesystem. It is safe to call repeatedly on the same backing store;
// each call produces an independent in-memory catalog.
func Mount(store storage.Storage) (*Filesystem, error) {
	fs := &Filesystem{store: store}
	if err := fs.scan(); err != nil {
		return nil, err
	}
	if err := fs.reclaimStale(); err != nil {
		return nil, err
	}
	logger.Info("filesystem mounted",
		"files", len(fs.catalog),
		"first_block", fs.firstBlock,
	)
	return fs, nil
}

// Files returns a snapshot of the current catalog's names, skipping
// entries that are not a live, ready file.
func (fs *Filesystem) Files() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	names := make([]string, 0, len(fs.catalog))
	for _, w := range fs.catalog {
		m := w.Entry().Metadata()
		if m.Ready() && !m.MarkedForDeletion() && !m.Deleted() {
			names = append(names, m.NameString())
		}
	}
	return names
}
