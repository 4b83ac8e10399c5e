package playback

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/entrhq/lattice/pkg/block"
	"github.com/entrhq/lattice/pkg/coordinate"
	"github.com/entrhq/lattice/pkg/index"
	"github.com/entrhq/lattice/pkg/restore"
	"github.com/entrhq/lattice/pkg/store"
)

// fakeReader serves blocks from memory, reporting unwritten coordinates the
// way the real store does.
type fakeReader struct {
	blocks map[coordinate.Coordinate]*block.Block
}

func (f *fakeReader) Read(c coordinate.Coordinate) (*block.Block, error) {
	b, ok := f.blocks[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotWritten, c)
	}
	return b, nil
}

// seedRun stores blocks at consecutive coordinates from start, optionally
// followed by a terminal marker.
func seedRun(t *testing.T, r *fakeReader, start coordinate.Coordinate, blocks []*block.Block, terminated bool) {
	t.Helper()
	c := start
	for _, b := range blocks {
		r.blocks[c] = b
		next, overflow := c.Next()
		if overflow {
			t.Fatal("Seed run overflowed the coordinate space")
		}
		c = next
	}
	if terminated {
		r.blocks[c] = block.Terminator()
	}
}

func newTestIndex(t *testing.T, entries ...index.Entry) *index.Index {
	t.Helper()
	idx, err := index.Load(t.TempDir()+"/conversation_index.txt", index.OrderInsertion)
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	for _, e := range entries {
		idx.Record(e)
	}
	return idx
}

func TestResolveNoMatch(t *testing.T) {
	p := New(newTestIndex(t), &fakeReader{blocks: map[coordinate.Coordinate]*block.Block{}}, nil)
	_, err := p.Resolve("ghost", strings.NewReader(""), &bytes.Buffer{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if !errors.Is(err, index.ErrNoMatch) {
		t.Errorf("Expected the index no-match sentinel, got %v", err)
	}
}

func TestResolveSingleMatch(t *testing.T) {
	idx := newTestIndex(t, index.Entry{Key: "wave-notes--c1", ID: "c1", Title: "Wave Notes", Start: coordinate.Origin()})
	p := New(idx, &fakeReader{blocks: map[coordinate.Coordinate]*block.Block{}}, nil)

	e, err := p.Resolve("wave", strings.NewReader(""), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if e.Key != "wave-notes--c1" {
		t.Errorf("Resolved wrong entry: %+v", e)
	}
}

func TestResolveAmbiguousNumberedChoice(t *testing.T) {
	second, _ := coordinate.Origin().Next()
	idx := newTestIndex(t,
		index.Entry{Key: "notes-a--1", ID: "1", Title: "Notes A", Start: coordinate.Origin()},
		index.Entry{Key: "notes-b--2", ID: "2", Title: "Notes B", Start: second},
	)
	p := New(idx, &fakeReader{blocks: map[coordinate.Coordinate]*block.Block{}}, nil)

	var out bytes.Buffer
	e, err := p.Resolve("notes", strings.NewReader("2\n"), &out)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if e.Key != "notes-b--2" {
		t.Errorf("Expected second entry, got %+v", e)
	}
	if !strings.Contains(out.String(), "[1] Notes A") || !strings.Contains(out.String(), "[2] Notes B") {
		t.Errorf("Menu missing entries:\n%s", out.String())
	}
}

func TestResolveAmbiguousRetriesInvalidInput(t *testing.T) {
	second, _ := coordinate.Origin().Next()
	idx := newTestIndex(t,
		index.Entry{Key: "notes-a--1", ID: "1", Title: "Notes A", Start: coordinate.Origin()},
		index.Entry{Key: "notes-b--2", ID: "2", Title: "Notes B", Start: second},
	)
	p := New(idx, &fakeReader{blocks: map[coordinate.Coordinate]*block.Block{}}, nil)

	var out bytes.Buffer
	e, err := p.Resolve("notes", strings.NewReader("nope\n1\n"), &out)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if e.Key != "notes-a--1" {
		t.Errorf("Expected first entry, got %+v", e)
	}
	if !strings.Contains(out.String(), `invalid selection "nope"`) {
		t.Errorf("Expected invalid-selection notice:\n%s", out.String())
	}
}

func TestResolveAmbiguousAcceptsExactKey(t *testing.T) {
	second, _ := coordinate.Origin().Next()
	idx := newTestIndex(t,
		index.Entry{Key: "notes-a--1", ID: "1", Title: "Notes A", Start: coordinate.Origin()},
		index.Entry{Key: "notes-b--2", ID: "2", Title: "Notes B", Start: second},
	)
	p := New(idx, &fakeReader{blocks: map[coordinate.Coordinate]*block.Block{}}, nil)

	e, err := p.Resolve("notes", strings.NewReader("notes-b--2\n"), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if e.Key != "notes-b--2" {
		t.Errorf("Expected key selection, got %+v", e)
	}
}

func TestDumpPrintsRunInOrder(t *testing.T) {
	r := &fakeReader{blocks: map[coordinate.Coordinate]*block.Block{}}
	seedRun(t, r, coordinate.Origin(), []*block.Block{
		{Turn: 1, User: "first question", Assistant: "first answer"},
		{Turn: 2, User: "second question", Assistant: "second answer"},
	}, true)
	p := New(newTestIndex(t), r, nil)

	var out bytes.Buffer
	err := p.Dump(&out, index.Entry{Key: "k", Title: "Wave Notes", Start: coordinate.Origin()})
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "Wave Notes") {
		t.Error("Expected title header in dump")
	}
	first := strings.Index(s, "first answer")
	second := strings.Index(s, "second answer")
	if first < 0 || second < 0 || first > second {
		t.Errorf("Blocks missing or out of order:\n%s", s)
	}
}

func TestDumpTruncatedRunPrintsPartialAndFails(t *testing.T) {
	r := &fakeReader{blocks: map[coordinate.Coordinate]*block.Block{}}
	seedRun(t, r, coordinate.Origin(), []*block.Block{
		{Turn: 1, User: "only question", Assistant: "only answer"},
	}, false)
	p := New(newTestIndex(t), r, nil)

	var out bytes.Buffer
	err := p.Dump(&out, index.Entry{Key: "k", Start: coordinate.Origin()})
	if !errors.Is(err, restore.ErrTruncated) {
		t.Fatalf("Expected ErrTruncated, got %v", err)
	}
	if !strings.Contains(out.String(), "only answer") {
		t.Error("Expected recovered content before truncation notice")
	}
	if !strings.Contains(out.String(), "truncated") {
		t.Error("Expected truncation notice")
	}
}

func TestRenderPlain(t *testing.T) {
	b := &block.Block{
		Turn:        2,
		User:        "show me",
		Assistant:   "here you go",
		Attachments: []string{"plot.png"},
		Tokens:      42,
	}
	s := RenderPlain(b)
	for _, want := range []string{"turn 3", "~42 tokens", "You:", "show me", "Assistant:", "here you go", "plot.png"} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected %q in rendered block:\n%s", want, s)
		}
	}
}

func TestHighlightFencesPreservesContent(t *testing.T) {
	src := "intro text\n```go\nfmt.Println(\"hi\")\n```\noutro"
	out := highlightFences(src)
	for _, want := range []string{"intro text", "```go", "fmt", "outro"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q preserved in highlighted output", want)
		}
	}
}

func TestHighlightFencesUnclosedFencePassesThrough(t *testing.T) {
	src := "```python\nprint(1)"
	out := highlightFences(src)
	if !strings.Contains(out, "print(1)") {
		t.Errorf("Expected unclosed fence content preserved, got:\n%s", out)
	}
}
