// Package index maintains the persistent mapping from conversation key to
// starting coordinate. The index is a line-oriented text file, one
// tab-separated entry per conversation (key, identifier, title, starting
// coordinate), kept in insertion order and rewritten atomically on change.
package index

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/entrhq/lattice/pkg/coordinate"
)

// ErrNoMatch is the sentinel wrapped by callers when a lookup query matches
// no entry. Lookup itself just returns an empty slice.
var ErrNoMatch = errors.New("index: no conversation matches query")

// Order controls how lookup results are sorted when several entries match.
type Order string

const (
	// OrderInsertion ranks matches by their original insertion order.
	OrderInsertion Order = "insertion"
	// OrderAlphabetical ranks matches by title, case-insensitively.
	OrderAlphabetical Order = "alphabetical"
)

// Entry is one conversation's index record.
type Entry struct {
	Key   string
	ID    string
	Title string
	Start coordinate.Coordinate
}

// Index is the in-memory view of the index file. It is loaded at startup and
// saved after every mutation; entries are never deleted by normal operation.
type Index struct {
	path    string
	entries []Entry
	byKey   map[string]int
	order   Order
}

// Load reads the index file at path. A missing file yields an empty index.
func Load(path string, order Order) (*Index, error) {
	if order == "" {
		order = OrderInsertion
	}
	idx := &Index{path: path, byKey: make(map[string]int), order: order}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if text == "" {
			continue
		}
		e, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("index: %s line %d: %w", path, line, err)
		}
		idx.byKey[e.Key] = len(idx.entries)
		idx.entries = append(idx.entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("index: scan %s: %w", path, err)
	}
	return idx, nil
}

func parseLine(line string) (Entry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf("expected 4 tab-separated fields, got %d", len(fields))
	}
	start, err := coordinate.Parse(fields[3])
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: fields[0], ID: fields[1], Title: fields[2], Start: start}, nil
}

// Save rewrites the index file atomically, preserving insertion order.
func (idx *Index) Save() error {
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o750); err != nil {
		return fmt.Errorf("index: create directory: %w", err)
	}
	var sb strings.Builder
	for _, e := range idx.entries {
		sb.WriteString(sanitizeField(e.Key))
		sb.WriteByte('\t')
		sb.WriteString(sanitizeField(e.ID))
		sb.WriteByte('\t')
		sb.WriteString(sanitizeField(e.Title))
		sb.WriteByte('\t')
		sb.WriteString(e.Start.String())
		sb.WriteByte('\n')
	}
	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("index: write temp file: %w", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("index: atomic rename %s: %w", idx.path, err)
	}
	return nil
}

// sanitizeField keeps the line format parseable whatever the title contains.
func sanitizeField(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// Record inserts a new entry or updates the existing one for e.Key in place,
// keeping its original position.
func (idx *Index) Record(e Entry) {
	if i, ok := idx.byKey[e.Key]; ok {
		idx.entries[i] = e
		return
	}
	idx.byKey[e.Key] = len(idx.entries)
	idx.entries = append(idx.entries, e)
}

// Resolve returns the entry for an exact key.
func (idx *Index) Resolve(key string) (Entry, bool) {
	i, ok := idx.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return idx.entries[i], true
}

// Lookup returns every entry whose key, identifier, or title contains query
// as a case-insensitive substring, ordered per the index's configured order.
// An empty query matches everything.
func (idx *Index) Lookup(query string) []Entry {
	q := strings.ToLower(query)
	var matches []Entry
	for _, e := range idx.entries {
		if q == "" ||
			strings.Contains(strings.ToLower(e.Key), q) ||
			strings.Contains(strings.ToLower(e.ID), q) ||
			strings.Contains(strings.ToLower(e.Title), q) {
			matches = append(matches, e)
		}
	}
	if idx.order == OrderAlphabetical {
		sort.SliceStable(matches, func(i, j int) bool {
			return strings.ToLower(matches[i].Title) < strings.ToLower(matches[j].Title)
		})
	}
	return matches
}

// Entries returns all entries in insertion order.
func (idx *Index) Entries() []Entry {
	out := make([]Entry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// Len returns the number of recorded conversations.
func (idx *Index) Len() int {
	return len(idx.entries)
}
