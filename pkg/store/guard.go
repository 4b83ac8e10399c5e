package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsafeName is returned for an attachment name that would land outside
// its block's leaf directory. Attachment names originate in conversation
// content and are untrusted.
var ErrUnsafeName = errors.New("store: unsafe attachment name")

// safeAttachmentName reduces an attachment name to a plain file name that
// stays inside the leaf directory it is written to.
func safeAttachmentName(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return base, nil
}

// withinRoot reports whether path stays inside the writer's block tree after
// cleaning. Every write path is checked before touching the filesystem.
func (w *Writer) withinRoot(path string) bool {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return false
	}
	root, err := filepath.Abs(w.root)
	if err != nil {
		return false
	}
	sep := string(filepath.Separator)
	return abs == root || strings.HasPrefix(abs+sep, root+sep)
}
