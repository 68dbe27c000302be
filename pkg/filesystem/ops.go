package filesystem

import (
	"bytes"
	"fmt"

	"github.com/rudelblinken/firmware/internal/logger"
	"github.com/rudelblinken/firmware/pkg/vfile"
)

const maxNameLength = 16

// WriteFile writes content under name in one call: it allocates space,
// writes the content, and commits, verifying the result matches what was
// requested. This is the small-file path; large or chunked uploads use
// GetFileWriter instead so the caller can stream content in over time.
func (fs *Filesystem) WriteFile(name string, content []byte) error {
	if len(name) > maxNameLength {
		return ErrFileNameTooLong
	}

	pw, err := fs.GetFileWriter(name, uint32(len(content)))
	if err != nil {
		return err
	}
	if _, err := pw.Write(content); err != nil {
		return err
	}
	r, err := pw.Commit()
	if err != nil {
		return err
	}
	defer r.Close()

	if r.Name() != name || r.Length() != uint32(len(content)) {
		return ErrVerifyMismatch
	}
	return nil
}

// PendingWriter wraps a vfile.Writer so that Commit also registers the
// resulting file in the filesystem's catalog. A catalog entry only comes
// into existence once the content is fully committed and verified. A
// never-committed PendingWriter leaves a metadata record that never
// became READY; the next mount's scan finds it and erases its blocks, and
// GetFileWriter erases any blocks it reuses before writing to them.
type PendingWriter struct {
	fs *Filesystem
	w  vfile.Writer
}

// Write writes p at the writer's current cursor. See vfile.Writer.Write.
func (p *PendingWriter) Write(b []byte) (int, error) { return p.w.Write(b) }

// Seek repositions the writer's cursor. See vfile.Writer.Seek.
func (p *PendingWriter) Seek(offset uint32) error { return p.w.Seek(offset) }

// Length returns the file's declared total length.
func (p *PendingWriter) Length() uint32 { return p.w.Length() }

// Written returns the high-water mark of bytes written so far.
func (p *PendingWriter) Written() uint32 { return p.w.Written() }

// Commit finalizes the file and adds it to the filesystem's catalog.
func (p *PendingWriter) Commit() (vfile.Reader, error) {
	r, err := p.w.Commit()
	if err != nil {
		return vfile.Reader{}, err
	}

	p.fs.mu.Lock()
	p.fs.catalog = append(p.fs.catalog, r.Clone().Downgrade())
	p.fs.mu.Unlock()

	logger.Info("file committed", logger.Filename(r.Name()), logger.Size(uint64(r.Length())))
	return r, nil
}

// GetFileWriter allocates space for a file of the given declared length
// and returns a PendingWriter over it. The caller writes content in any
// order via Seek/Write and calls Commit once all of it has landed.
func (fs *Filesystem) GetFileWriter(name string, length uint32) (*PendingWriter, error) {
	if len(name) > maxNameLength {
		return nil, ErrFileNameTooLong
	}

	// Reclaim whatever became reclaimable since the last write, so a
	// deferred deletion does not fail an allocation it no longer needs
	// to block.
	if err := fs.Cleanup(); err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	addr, err := fs.findFreeSpace(int(length))
	if err != nil {
		return nil, err
	}

	blockSize := fs.store.BlockSize()
	startBlock := addr / blockSize

	// The chosen range is free as far as the catalog is concerned, but it
	// may still carry residue from a cancelled or crashed upload whose
	// metadata never reached READY. Flash only clears bits on write, so
	// the blocks must be returned to the erased state before reuse.
	for i := 0; i < blocksForContent(blockSize, int(length)); i++ {
		if err := fs.store.Erase((startBlock + i) % fs.store.BlockCount()); err != nil {
			return nil, fmt.Errorf("filesystem: erase allocation: %w", err)
		}
	}

	entry, err := vfile.NewEntry(fs.store, name, length, addr, addr+vfile.MetadataSize)
	if err != nil {
		return nil, err
	}

	nextBlock := (startBlock + blocksForContent(blockSize, int(length))) % fs.store.BlockCount()
	fs.fixFirstBlock(nextBlock)

	logger.Debug("file space allocated",
		logger.Filename(name), logger.Address(addr), logger.Size(uint64(length)))

	return &PendingWriter{fs: fs, w: vfile.NewWriter(entry)}, nil
}

// findReady returns the live catalog index whose metadata passes pred,
// or -1 if none does. Entries that are not ready, are marked for
// deletion, or have been deleted are never matched: they are not
// visible as files even though they still occupy space.
func (fs *Filesystem) findReady(pred func(vfile.Metadata) bool) int {
	for i, w := range fs.catalog {
		m := w.Entry().Metadata()
		if m.Ready() && !m.MarkedForDeletion() && !m.Deleted() && pred(m) {
			return i
		}
	}
	return -1
}

// ReadFileByName returns a Reader for the live file named name.
func (fs *Filesystem) ReadFileByName(name string) (vfile.Reader, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	i := fs.findReady(func(m vfile.Metadata) bool { return m.NameString() == name })
	if i < 0 {
		return vfile.Reader{}, ErrFileNotFound
	}
	return fs.catalog[i].Upgrade()
}

// ReadFileByHash returns a Reader for the live file whose content hash
// equals hash.
func (fs *Filesystem) ReadFileByHash(hash [32]byte) (vfile.Reader, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	i := fs.findReady(func(m vfile.Metadata) bool { return bytes.Equal(m.Hash[:], hash[:]) })
	if i < 0 {
		return vfile.Reader{}, ErrFileNotFound
	}
	return fs.catalog[i].Upgrade()
}

// FindByHash returns a Weak handle for the live file whose content hash
// equals hash, without taking a strong reference. Callers that actually
// need the content upgrade the result themselves; callers that only want
// to know the file exists (the management service's program-hash lookup)
// can hold the Weak indefinitely without blocking reclamation.
func (fs *Filesystem) FindByHash(hash [32]byte) (vfile.Weak, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	i := fs.findReady(func(m vfile.Metadata) bool { return bytes.Equal(m.Hash[:], hash[:]) })
	if i < 0 {
		return vfile.Weak{}, ErrFileNotFound
	}
	return fs.catalog[i].Clone(), nil
}

// Delete marks the named file for deletion. If no Reader currently holds
// a strong reference to it, its blocks are reclaimed immediately;
// otherwise reclamation is deferred until the last Reader closes and a
// future Cleanup call sweeps it.
func (fs *Filesystem) Delete(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	i := fs.findReady(func(m vfile.Metadata) bool { return m.NameString() == name })
	if i < 0 {
		return ErrFileNotFound
	}

	w := fs.catalog[i]
	if err := w.MarkForDeletion(); err != nil {
		return err
	}
	logger.Info("file marked for deletion", logger.Filename(name))

	if w.Entry().StrongCount() == 0 {
		return fs.reclaim(i)
	}
	return nil
}

// Cleanup sweeps the catalog for entries marked for deletion that have
// since dropped to zero strong references, reclaiming their blocks. It
// is safe to call periodically or after every Reader.Close.
func (fs *Filesystem) Cleanup() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for i := 0; i < len(fs.catalog); {
		m := fs.catalog[i].Entry().Metadata()
		if m.MarkedForDeletion() && !m.Deleted() && fs.catalog[i].Entry().StrongCount() == 0 {
			if err := fs.reclaim(i); err != nil {
				return err
			}
			continue // reclaim removed index i; re-check the entry now at i
		}
		i++
	}
	return nil
}

// reclaim physically erases the blocks for fs.catalog[i] and removes it
// from the catalog. Callers must hold fs.mu and must have already
// confirmed StrongCount()==0.
func (fs *Filesystem) reclaim(i int) error {
	w := fs.catalog[i]
	e := w.Entry()

	if err := w.MarkDeleted(); err != nil {
		return fmt.Errorf("filesystem: reclaim: %w", err)
	}
	if err := fs.eraseEntry(e); err != nil {
		return fmt.Errorf("filesystem: reclaim: %w", err)
	}
	e.Invalidate()

	fs.catalog = append(fs.catalog[:i], fs.catalog[i+1:]...)
	w.Close()

	logger.Info("file blocks reclaimed", logger.Filename(e.Metadata().NameString()))
	return nil
}
