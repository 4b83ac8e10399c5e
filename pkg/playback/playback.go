// Package playback renders stored conversations back to the terminal: dump
// mode prints the whole run as plain text, step mode is an interactive
// viewer. Queries resolve through the conversation index; ambiguous matches
// are disambiguated interactively.
package playback

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/lattice/pkg/index"
	"github.com/entrhq/lattice/pkg/logging"
	"github.com/entrhq/lattice/pkg/restore"
)

// ErrNotFound is returned when a query matches no stored conversation. It is
// the index package's no-match sentinel, so callers can test against either.
var ErrNotFound = index.ErrNoMatch

// Player resolves queries against the index and replays stored runs.
type Player struct {
	idx    *index.Index
	reader restore.BlockReader
	log    *logging.Logger
}

// New creates a player. log may be nil.
func New(idx *index.Index, reader restore.BlockReader, log *logging.Logger) *Player {
	return &Player{idx: idx, reader: reader, log: log}
}

// Resolve maps a query to exactly one index entry. No match is ErrNotFound;
// several matches are listed on out as a numbered menu and the choice read
// from in.
func (p *Player) Resolve(query string, in io.Reader, out io.Writer) (index.Entry, error) {
	matches := p.idx.Lookup(query)
	switch len(matches) {
	case 0:
		return index.Entry{}, fmt.Errorf("%w: %q", ErrNotFound, query)
	case 1:
		return matches[0], nil
	}
	return chooseNumbered(matches, in, out)
}

// ResolveInteractive is Resolve with a Bubble Tea list instead of a numbered
// prompt, for use before entering step mode.
func (p *Player) ResolveInteractive(query string) (index.Entry, error) {
	matches := p.idx.Lookup(query)
	switch len(matches) {
	case 0:
		return index.Entry{}, fmt.Errorf("%w: %q", ErrNotFound, query)
	case 1:
		return matches[0], nil
	}
	return Choose(matches)
}

// chooseNumbered prints the matches and reads a 1-based selection. An exact
// key typed instead of a number also selects.
func chooseNumbered(matches []index.Entry, in io.Reader, out io.Writer) (index.Entry, error) {
	fmt.Fprintf(out, "%d conversations match:\n", len(matches))
	for i, e := range matches {
		title := e.Title
		if title == "" {
			title = e.Key
		}
		fmt.Fprintf(out, "  [%d] %s (%s)\n", i+1, title, e.Key)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "choose 1-%d: ", len(matches))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return index.Entry{}, fmt.Errorf("playback: read selection: %w", err)
			}
			return index.Entry{}, ErrNoSelection
		}
		input := strings.TrimSpace(scanner.Text())
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(matches) {
			return matches[n-1], nil
		}
		for _, e := range matches {
			if e.Key == input {
				return e, nil
			}
		}
		fmt.Fprintf(out, "invalid selection %q\n", input)
	}
}

// Dump writes the whole run to out as plain text. A truncated chain prints
// everything recovered before returning restore.ErrTruncated.
func (p *Player) Dump(out io.Writer, e index.Entry) error {
	w := restore.NewWalker(p.reader, e.Start)
	title := e.Title
	if title == "" {
		title = e.Key
	}
	fmt.Fprintf(out, "=== %s (from %s) ===\n\n", title, e.Start)

	for {
		b, err := w.Next()
		if errors.Is(err, restore.ErrEnd) {
			return nil
		}
		if errors.Is(err, restore.ErrTruncated) {
			fmt.Fprintf(out, "[conversation truncated: %v]\n", err)
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, RenderPlain(b))
	}
}

// Step opens the interactive viewer on e's run.
func (p *Player) Step(e index.Entry) error {
	session, err := restore.NewSession(p.reader, e.Start)
	if err != nil {
		return err
	}
	if p.log != nil {
		p.log.Infof("interactive playback of %q from %s", e.Key, e.Start)
	}
	if _, err := tea.NewProgram(newStepModel(session, e), tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("playback: interactive viewer: %w", err)
	}
	return nil
}
