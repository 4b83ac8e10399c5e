// Package restore re-traverses a conversation's address run. Starting from
// the coordinate recorded in the index, it advances one step per block using
// the same increment rule the allocator uses, so traversal order always
// matches write order, and stops at the stored terminal marker.
package restore

import (
	"errors"
	"fmt"

	"github.com/entrhq/lattice/pkg/block"
	"github.com/entrhq/lattice/pkg/coordinate"
	"github.com/entrhq/lattice/pkg/store"
)

// ErrEnd signals the normal end of a conversation: the terminal marker was
// reached.
var ErrEnd = errors.New("restore: end of conversation")

// ErrTruncated signals a broken chain: a coordinate inside the run was never
// written and no terminal marker was found. It is reported distinctly from
// ErrEnd so a damaged store is never mistaken for a short conversation.
var ErrTruncated = errors.New("restore: conversation truncated")

// BlockReader is the storage read side the walker traverses.
type BlockReader interface {
	Read(c coordinate.Coordinate) (*block.Block, error)
}

// State is the walker's position in its traversal state machine.
type State int

const (
	// StateStart means no block has been fetched yet.
	StateStart State = iota
	// StateReading means the walker is positioned on a fetchable coordinate.
	StateReading
	// StateDone means the terminal marker was reached.
	StateDone
	// StateTruncated means the chain broke before a terminal marker.
	StateTruncated
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateReading:
		return "reading"
	case StateDone:
		return "done"
	case StateTruncated:
		return "truncated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Walker performs a single forward traversal. It is not safe for concurrent
// use; playback is a single-threaded suspend/resume loop.
type Walker struct {
	reader BlockReader
	next   coordinate.Coordinate
	state  State
}

// NewWalker positions a walker at the run's starting coordinate.
func NewWalker(reader BlockReader, start coordinate.Coordinate) *Walker {
	return &Walker{reader: reader, next: start, state: StateStart}
}

// State returns the walker's current traversal state.
func (w *Walker) State() State {
	return w.state
}

// Position returns the coordinate the next call to Next will read.
func (w *Walker) Position() coordinate.Coordinate {
	return w.next
}

// Next fetches the block at the current coordinate and advances. It returns
// ErrEnd once the terminal marker is reached and ErrTruncated when the chain
// breaks; both are sticky.
func (w *Walker) Next() (*block.Block, error) {
	switch w.state {
	case StateDone:
		return nil, ErrEnd
	case StateTruncated:
		return nil, fmt.Errorf("%w at %s", ErrTruncated, w.next)
	}
	w.state = StateReading

	b, err := w.reader.Read(w.next)
	if errors.Is(err, store.ErrNotWritten) {
		w.state = StateTruncated
		return nil, fmt.Errorf("%w at %s", ErrTruncated, w.next)
	}
	if err != nil {
		return nil, err
	}
	if b.Terminal {
		w.state = StateDone
		return nil, ErrEnd
	}

	next, overflow := w.next.Next()
	if overflow {
		// The run reached the edge of the space with no marker; there is
		// nowhere left to look for one.
		w.state = StateTruncated
		return b, nil
	}
	w.next = next
	return b, nil
}

// Dump walks the whole run from start, returning every block in write order.
func Dump(reader BlockReader, start coordinate.Coordinate) ([]*block.Block, error) {
	w := NewWalker(reader, start)
	var blocks []*block.Block
	for {
		b, err := w.Next()
		if errors.Is(err, ErrEnd) {
			return blocks, nil
		}
		if err != nil {
			return blocks, err
		}
		blocks = append(blocks, b)
	}
}
