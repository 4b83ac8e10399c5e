package coordinate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSpaceExhausted is returned by Next once every position of the cursor has
// overflowed. Further stores are impossible in this space; already-written
// data is unaffected.
var ErrSpaceExhausted = errors.New("coordinate: address space exhausted")

// exhaustedSentinel is what the cursor file holds once the space is full.
const exhaustedSentinel = "exhausted"

// Allocator hands out addresses in strictly increasing order. The cursor (the
// next unallocated coordinate) is persisted so that a later run resumes after
// the last-used address instead of restarting at the origin; that is what
// makes append mode additive.
//
// Allocation is deterministic: the same persisted cursor and the same number
// of Next calls always yield the same coordinate sequence.
type Allocator struct {
	path      string
	next      Coordinate
	exhausted bool
}

// LoadAllocator reads the persisted cursor at path. A missing file yields an
// allocator positioned at the origin.
func LoadAllocator(path string) (*Allocator, error) {
	a := &Allocator{path: path}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("coordinate: read cursor %s: %w", path, err)
	}
	s := strings.TrimSpace(string(b))
	if s == exhaustedSentinel {
		a.exhausted = true
		return a, nil
	}
	c, err := Parse(s)
	if err != nil {
		return nil, fmt.Errorf("coordinate: corrupt cursor file %s: %w", path, err)
	}
	a.next = c
	return a, nil
}

// Reset moves the cursor back to the origin. Used by fresh-mode stores, which
// assume an empty coordinate space.
func (a *Allocator) Reset() {
	a.next = Origin()
	a.exhausted = false
}

// Next returns the current cursor value and advances the cursor one step.
func (a *Allocator) Next() (Coordinate, error) {
	if a.exhausted {
		return Coordinate{}, ErrSpaceExhausted
	}
	cur := a.next
	a.next, a.exhausted = a.next.Next()
	return cur, nil
}

// Peek returns the cursor without advancing it.
func (a *Allocator) Peek() Coordinate {
	return a.next
}

// Exhausted reports whether the space has been fully allocated.
func (a *Allocator) Exhausted() bool {
	return a.exhausted
}

// Flush durably persists the cursor. Stores call this after each conversation
// so a crash between conversations never reuses addresses.
func (a *Allocator) Flush() error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o750); err != nil {
		return fmt.Errorf("coordinate: create cursor directory: %w", err)
	}
	content := a.next.String()
	if a.exhausted {
		content = exhaustedSentinel
	}
	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content+"\n"), 0o600); err != nil {
		return fmt.Errorf("coordinate: write cursor temp file: %w", err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("coordinate: atomic rename %s: %w", a.path, err)
	}
	return nil
}
