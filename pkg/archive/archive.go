// Package archive orchestrates store runs: it walks the sorter's output one
// conversation at a time, splits each into blocks, allocates a consecutive
// coordinate run for them, persists blocks and attachments, and records the
// starting coordinate in the conversation index.
//
// Each conversation is its own unit of atomicity. Its blocks and terminal
// marker are written first, then the index entry, then the allocator cursor,
// so a crash between conversations never leaves an index entry pointing at an
// unwritten coordinate.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/entrhq/lattice/pkg/block"
	"github.com/entrhq/lattice/pkg/coordinate"
	"github.com/entrhq/lattice/pkg/index"
	"github.com/entrhq/lattice/pkg/logging"
	"github.com/entrhq/lattice/pkg/restore"
	"github.com/entrhq/lattice/pkg/store"
	"github.com/entrhq/lattice/pkg/types"
)

// Mode selects how a store run treats existing state.
type Mode int

const (
	// ModeFresh assumes an empty coordinate space and allocates from the
	// origin in input order.
	ModeFresh Mode = iota
	// ModeAppend honors the persisted cursor: new conversations land after
	// everything stored before, and unchanged conversations are skipped.
	ModeAppend
)

// maxRunAttempts bounds how often a conversation's run is restarted at fresh
// coordinates after a write conflict.
const maxRunAttempts = 3

// Stats summarizes a store run.
type Stats struct {
	Conversations int
	Stored        int
	Skipped       int
	Blocks        int
	Failed        []string
}

// Archiver wires the allocator, storage writer, and index into store runs.
type Archiver struct {
	alloc   *coordinate.Allocator
	writer  *store.Writer
	idx     *index.Index
	counter *block.TokenCounter
	log     *logging.Logger
}

// Options carries the file locations and collaborators for New.
type Options struct {
	CursorPath string
	BlocksDir  string
	IndexPath  string
	Order      index.Order
	// Counter may be nil; blocks then carry no token counts.
	Counter *block.TokenCounter
	Logger  *logging.Logger
}

// New loads the persisted allocator cursor and index and prepares an
// archiver against the block tree.
func New(opts Options) (*Archiver, error) {
	alloc, err := coordinate.LoadAllocator(opts.CursorPath)
	if err != nil {
		return nil, err
	}
	writer, err := store.NewWriter(opts.BlocksDir)
	if err != nil {
		return nil, err
	}
	idx, err := index.Load(opts.IndexPath, opts.Order)
	if err != nil {
		return nil, err
	}
	return &Archiver{
		alloc:   alloc,
		writer:  writer,
		idx:     idx,
		counter: opts.Counter,
		log:     opts.Logger,
	}, nil
}

// Index exposes the loaded conversation index for lookups after a run.
func (a *Archiver) Index() *index.Index {
	return a.idx
}

// Writer exposes the block store read side.
func (a *Archiver) Writer() *store.Writer {
	return a.writer
}

// StoreAll stores every conversation folder under sortedRoot, in name order.
// Per-conversation failures are recorded in Stats.Failed and the run
// continues; an exhausted address space aborts the run since nothing further
// can be stored.
func (a *Archiver) StoreAll(ctx context.Context, sortedRoot string, mode Mode) (Stats, error) {
	if mode == ModeFresh {
		a.alloc.Reset()
	}

	entries, err := os.ReadDir(sortedRoot)
	if err != nil {
		return Stats{}, fmt.Errorf("archive: read sorted root %s: %w", sortedRoot, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)

	var stats Stats
	for _, name := range dirs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Conversations++
		n, skipped, err := a.storeConversation(filepath.Join(sortedRoot, name), name, mode)
		if errors.Is(err, coordinate.ErrSpaceExhausted) {
			return stats, fmt.Errorf("archive: %w", err)
		}
		if err != nil {
			a.warnf("store %q failed: %v", name, err)
			stats.Failed = append(stats.Failed, name)
			continue
		}
		if skipped {
			stats.Skipped++
			continue
		}
		stats.Stored++
		stats.Blocks += n
	}
	return stats, nil
}

// storeConversation stores one conversation folder. The folder name is the
// conversation key. Returns the number of blocks written and whether the
// conversation was skipped as unchanged.
func (a *Archiver) storeConversation(dir, key string, mode Mode) (int, bool, error) {
	convPath, err := findConversationFile(dir)
	if err != nil {
		return 0, false, err
	}
	conv, err := types.LoadConversation(convPath)
	if err != nil {
		return 0, false, err
	}

	blocks := block.Split(conv)
	if len(blocks) == 0 {
		a.warnf("conversation %q has no messages, skipping", key)
		return 0, true, nil
	}
	a.counter.Annotate(blocks)

	if mode == ModeAppend {
		if prev, ok := a.idx.Resolve(key); ok {
			if a.unchanged(prev, blocks) {
				a.infof("conversation %q unchanged at %s, skipping", key, prev.Start)
				return 0, true, nil
			}
			a.infof("conversation %q changed, re-storing at fresh coordinates", key)
		}
	}

	start, err := a.writeRun(dir, key, blocks)
	if err != nil {
		return 0, false, err
	}

	id := conv.ID
	if id == "" {
		id = key
	}
	a.idx.Record(index.Entry{Key: key, ID: id, Title: conv.Title, Start: start})
	if err := a.idx.Save(); err != nil {
		return 0, false, err
	}
	if err := a.alloc.Flush(); err != nil {
		return 0, false, err
	}
	a.infof("stored %q: %d blocks from %s", key, len(blocks), start)
	return len(blocks), false, nil
}

// writeRun writes the block run plus terminal marker at consecutive freshly
// allocated coordinates. On a write conflict the partial run is abandoned
// (stale blocks are an accepted space cost) and the whole conversation
// restarts at the next free coordinates.
func (a *Archiver) writeRun(dir, key string, blocks []*block.Block) (coordinate.Coordinate, error) {
	for attempt := 1; attempt <= maxRunAttempts; attempt++ {
		start, conflicted, err := a.tryRun(dir, blocks)
		if err != nil {
			return coordinate.Coordinate{}, err
		}
		if !conflicted {
			return start, nil
		}
		a.warnf("write conflict storing %q at %s (attempt %d), restarting at fresh coordinates", key, start, attempt)
	}
	return coordinate.Coordinate{}, fmt.Errorf("archive: giving up on %q after %d conflicting runs", key, maxRunAttempts)
}

func (a *Archiver) tryRun(dir string, blocks []*block.Block) (coordinate.Coordinate, bool, error) {
	var start coordinate.Coordinate
	for i, b := range blocks {
		c, err := a.alloc.Next()
		if err != nil {
			return start, false, err
		}
		if i == 0 {
			start = c
		}
		if err := a.writer.Write(c, b, dir); errors.Is(err, store.ErrConflict) {
			return start, true, nil
		} else if err != nil {
			return start, false, err
		}
	}
	c, err := a.alloc.Next()
	if err != nil {
		return start, false, err
	}
	if err := a.writer.WriteTerminal(c); errors.Is(err, store.ErrConflict) {
		return start, true, nil
	} else if err != nil {
		return start, false, err
	}
	return start, false, nil
}

// unchanged reports whether the stored run at prev.Start still matches the
// freshly split blocks. A truncated or unreadable stored run counts as
// changed so it gets re-written.
func (a *Archiver) unchanged(prev index.Entry, blocks []*block.Block) bool {
	stored, err := restore.Dump(a.writer, prev.Start)
	if err != nil {
		a.warnf("stored run for %q unreadable (%v), treating as changed", prev.Key, err)
		return false
	}
	if len(stored) != len(blocks) {
		return false
	}
	for i := range stored {
		if !stored[i].ContentEquals(blocks[i]) {
			return false
		}
	}
	return true
}

// findConversationFile locates the conversation JSON inside a sorted folder,
// ignoring the sorter's asset manifest.
func findConversationFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("archive: read conversation folder %s: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || name == types.ManifestFileName {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", fmt.Errorf("archive: no conversation JSON in %s", dir)
}

func (a *Archiver) infof(format string, v ...interface{}) {
	if a.log != nil {
		a.log.Infof(format, v...)
	}
}

func (a *Archiver) warnf(format string, v ...interface{}) {
	if a.log != nil {
		a.log.Warnf(format, v...)
	}
}
