// Package store materializes blocks and their attachments on disk. Every
// coordinate maps to one directory path (one segment per coordinate
// position); a leaf directory holds exactly one serialized block plus that
// block's attachment files.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/entrhq/lattice/pkg/block"
	"github.com/entrhq/lattice/pkg/coordinate"
)

// ErrNotWritten is returned by Read for a coordinate that never received a
// block. It is distinct from reading a terminal marker: hitting it during
// traversal means the chain is truncated, not that the conversation ended.
var ErrNotWritten = errors.New("store: coordinate not written")

// ErrConflict is returned by Write when the coordinate already holds a block
// with different content. Policy is never to overwrite: callers allocate a
// fresh coordinate run instead.
var ErrConflict = errors.New("store: coordinate holds different content")

// blockFileName is the serialized block file inside a leaf directory.
const blockFileName = "block.json"

// Writer owns the on-disk block tree rooted at a single directory. All of its
// writes stay inside the path derived from the coordinate it is given.
type Writer struct {
	root string
}

// NewWriter creates a writer rooted at dir, creating it if absent.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("store: init block root %s: %w", dir, err)
	}
	return &Writer{root: dir}, nil
}

func (w *Writer) leafDir(c coordinate.Coordinate) string {
	return filepath.Join(append([]string{w.root}, c.PathSegments()...)...)
}

// Write persists b at c and copies the block's attachments from
// attachmentsFrom into the same leaf directory. Re-writing identical content
// is idempotent; differing content returns ErrConflict and leaves the
// existing block untouched.
func (w *Writer) Write(c coordinate.Coordinate, b *block.Block, attachmentsFrom string) error {
	raw, err := block.Encode(b)
	if err != nil {
		return err
	}

	dir := w.leafDir(c)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("store: create block directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, blockFileName)
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if !bytes.Equal(existing, raw) {
			return fmt.Errorf("%w: %s", ErrConflict, c)
		}
		// Identical re-write; fall through so attachments are still synced.
	case errors.Is(err, os.ErrNotExist):
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, raw, 0o600); err != nil {
			return fmt.Errorf("store: write block temp file: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("store: atomic rename %s: %w", path, err)
		}
	default:
		return fmt.Errorf("store: read existing block at %s: %w", c, err)
	}

	for _, name := range b.Attachments {
		if err := w.copyAttachment(dir, attachmentsFrom, name); err != nil {
			return err
		}
	}
	return nil
}

// WriteTerminal writes the end-of-conversation marker at c.
func (w *Writer) WriteTerminal(c coordinate.Coordinate) error {
	return w.Write(c, block.Terminator(), "")
}

// Read returns the block stored at c. A terminal marker decodes to a block
// with Terminal set; a coordinate that was never written yields ErrNotWritten.
func (w *Writer) Read(c coordinate.Coordinate) (*block.Block, error) {
	raw, err := os.ReadFile(filepath.Join(w.leafDir(c), blockFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotWritten, c)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read block at %s: %w", c, err)
	}
	b, err := block.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("store: corrupt block at %s: %w", c, err)
	}
	return b, nil
}

// AttachmentPath returns where an attachment of the block at c lives.
func (w *Writer) AttachmentPath(c coordinate.Coordinate, name string) string {
	return filepath.Join(w.leafDir(c), filepath.Base(name))
}

// copyAttachment copies one attachment into the leaf directory. A
// byte-identical file already in place is skipped; a missing source is logged
// and skipped so one lost asset does not abort a whole store run.
func (w *Writer) copyAttachment(dir, from, name string) error {
	if from == "" {
		return nil
	}
	base, err := safeAttachmentName(name)
	if err != nil {
		return err
	}
	src := filepath.Join(from, base)
	data, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("store: attachment missing from source, skipping", "name", name, "source", from)
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read attachment %s: %w", src, err)
	}

	dst := filepath.Join(dir, base)
	if !w.withinRoot(dst) {
		return fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	if existing, err := os.ReadFile(dst); err == nil && bytes.Equal(existing, data) {
		return nil
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("store: write attachment temp file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: atomic rename %s: %w", dst, err)
	}
	return nil
}
