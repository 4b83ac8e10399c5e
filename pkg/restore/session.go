package restore

import (
	"errors"

	"github.com/entrhq/lattice/pkg/block"
	"github.com/entrhq/lattice/pkg/coordinate"
)

// ErrAtStart is returned by Back when the cursor is already on the first
// block.
var ErrAtStart = errors.New("restore: already at first block")

// Session is the interactive traversal: a cursor over the block run,
// lazily extended forward and retaining every visited block so backward
// movement never re-reads storage.
type Session struct {
	walker *Walker
	blocks []*block.Block
	cursor int
}

// NewSession opens an interactive session at start. The first block is
// fetched eagerly so callers can distinguish an empty or truncated run before
// entering their input loop.
func NewSession(reader BlockReader, start coordinate.Coordinate) (*Session, error) {
	s := &Session{walker: NewWalker(reader, start), cursor: -1}
	b, err := s.walker.Next()
	if err != nil {
		return nil, err
	}
	s.blocks = append(s.blocks, b)
	s.cursor = 0
	return s, nil
}

// Current returns the block under the cursor.
func (s *Session) Current() *block.Block {
	return s.blocks[s.cursor]
}

// Position returns the cursor's zero-based position in the run.
func (s *Session) Position() int {
	return s.cursor
}

// Fetched returns how many blocks have been discovered so far.
func (s *Session) Fetched() int {
	return len(s.blocks)
}

// Done reports whether the end of the conversation has been discovered.
func (s *Session) Done() bool {
	return s.walker.State() == StateDone
}

// Visited returns the blocks discovered so far, in run order.
func (s *Session) Visited() []*block.Block {
	out := make([]*block.Block, len(s.blocks))
	copy(out, s.blocks)
	return out
}

// Next advances the cursor, fetching from storage only when moving past the
// furthest block seen so far. At the end of the run it returns ErrEnd and
// leaves the cursor in place; a truncated chain surfaces ErrTruncated.
func (s *Session) Next() (*block.Block, error) {
	if s.cursor+1 < len(s.blocks) {
		s.cursor++
		return s.Current(), nil
	}
	b, err := s.walker.Next()
	if err != nil {
		return nil, err
	}
	s.blocks = append(s.blocks, b)
	s.cursor++
	return s.Current(), nil
}

// Back moves the cursor to the previous block without touching storage.
func (s *Session) Back() (*block.Block, error) {
	if s.cursor == 0 {
		return nil, ErrAtStart
	}
	s.cursor--
	return s.Current(), nil
}
