// Package sorter turns a raw chat export into one self-contained folder per
// conversation: a slugified folder holding the normalized conversation JSON,
// the attachment files referenced by its messages, and an asset manifest.
// Re-running over a newer export is incremental: unchanged conversations are
// skipped and strict extensions only add the new turns.
package sorter

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/entrhq/lattice/pkg/logging"
	"github.com/entrhq/lattice/pkg/types"
)

// maxSlugLen caps folder name length; titles are user-controlled and can be
// arbitrarily long.
const maxSlugLen = 80

// fileLineRe matches the "[File]: name.ext" lines the export rendering emits
// for uploaded assets.
var fileLineRe = regexp.MustCompile(`^\[File\]:\s*([\w .()\[\]\-]+)$`)

// Stats summarizes one sorter run.
type Stats struct {
	Added   int
	Updated int
	Skipped int
	Errors  []string
}

// Sorter reads an export directory and writes sorted conversation folders.
type Sorter struct {
	exportDir string
	outDir    string
	patterns  []glob.Glob
	log       *logging.Logger
}

// New creates a sorter. patterns filter which attachments are copied; nil
// means all. log may be nil.
func New(exportDir, outDir string, patterns []glob.Glob, log *logging.Logger) *Sorter {
	return &Sorter{exportDir: exportDir, outDir: outDir, patterns: patterns, log: log}
}

// existing is the prior state of a sorted conversation, keyed by id on
// incremental runs. jsonPath is the conversation JSON inside folder; its stem
// follows the title, so it can change between runs while folder stays put.
type existing struct {
	folder   string
	jsonPath string
	messages []types.Message
}

// Run sorts every conversation in the export. Per-conversation failures are
// collected in Stats.Errors; the run continues past them.
func (s *Sorter) Run(ctx context.Context) (Stats, error) {
	convs, assets, err := loadExport(
		filepath.Join(s.exportDir, "conversations.json"),
		filepath.Join(s.exportDir, "assets.json"),
	)
	if err != nil {
		return Stats{}, err
	}
	if err := os.MkdirAll(s.outDir, 0o750); err != nil {
		return Stats{}, fmt.Errorf("sorter: create output dir %s: %w", s.outDir, err)
	}

	prior, err := s.loadExisting()
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		outcome, err := s.sortOne(conv, assets, prior)
		if err != nil {
			title := conv.Title
			if title == "" {
				title = "Untitled"
			}
			s.warnf("sort %q failed: %v", title, err)
			stats.Errors = append(stats.Errors, title)
			continue
		}
		switch outcome {
		case outcomeAdded:
			stats.Added++
		case outcomeUpdated:
			stats.Updated++
		case outcomeSkipped:
			stats.Skipped++
		}
	}
	return stats, nil
}

type outcome int

const (
	outcomeAdded outcome = iota
	outcomeUpdated
	outcomeSkipped
)

func (s *Sorter) sortOne(conv rawConversation, assets map[string]string, prior map[string]existing) (outcome, error) {
	title := conv.Title
	if title == "" {
		title = "Untitled"
	}
	id := conv.ConversationID
	if id == "" {
		// Some exports lack stable ids; a generated one keeps the folder
		// addressable across this run but not across re-exports.
		id = uuid.New().String()
		s.warnf("conversation %q has no id, generated %s", title, id)
	}

	slugged := slugify(title)
	folder := filepath.Join(s.outDir, slugged+"--"+id)

	messages := extractMessages(conv, assets)
	cleanContent(messages)
	messages = groupMessages(messages)

	var stale string
	if old, ok := prior[id]; ok {
		switch {
		case len(messages) < len(old.messages):
			// The new export holds less than we already have; never lose data.
			return outcomeSkipped, nil
		case messagesEqual(messages[:len(old.messages)], old.messages):
			if len(messages) == len(old.messages) {
				return outcomeSkipped, nil
			}
			// Strict extension: only the new tail can reference new files.
			if err := s.copyAttachments(old.folder, extractAttachments(messages[len(old.messages):])); err != nil {
				return 0, err
			}
			if err := s.writeConversation(old.folder, conv, title, id, messages); err != nil {
				return 0, err
			}
			if err := s.removeStale(old.folder, old.jsonPath, slugged); err != nil {
				return 0, err
			}
			return outcomeUpdated, nil
		}
		// Diverged history: rewrite the folder wholesale.
		folder = old.folder
		stale = old.jsonPath
	}

	if err := os.MkdirAll(folder, 0o750); err != nil {
		return 0, fmt.Errorf("sorter: create folder %s: %w", folder, err)
	}
	if err := s.copyAttachments(folder, extractAttachments(messages)); err != nil {
		return 0, err
	}
	if err := s.writeConversation(folder, conv, title, id, messages); err != nil {
		return 0, err
	}
	if err := s.removeStale(folder, stale, slugged); err != nil {
		return 0, err
	}
	return outcomeAdded, nil
}

// removeStale deletes the prior conversation JSON after a title change so a
// folder never holds two payload files. A no-op when the name is unchanged.
func (s *Sorter) removeStale(folder, priorPath, slugged string) error {
	current := filepath.Join(folder, slugged+".json")
	if priorPath == "" || priorPath == current {
		return nil
	}
	if err := os.Remove(priorPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sorter: remove renamed conversation file %s: %w", priorPath, err)
	}
	return nil
}

// writeConversation writes the normalized conversation JSON plus the asset
// manifest into folder.
func (s *Sorter) writeConversation(folder string, conv rawConversation, title, id string, messages []types.Message) error {
	attachments := extractAttachments(messages)
	out := &types.Conversation{
		Title:        title,
		ID:           id,
		CreateTime:   conv.CreateTime,
		Model:        conv.Model,
		MessageCount: len(messages),
		Attachments:  attachments,
		Messages:     messages,
	}
	slugged := slugify(title)
	if err := out.Save(filepath.Join(folder, slugged+".json")); err != nil {
		return err
	}
	if len(attachments) == 0 {
		return nil
	}
	return s.writeManifest(folder, attachments)
}

// writeManifest records per-attachment size and, for PDFs, page count.
func (s *Sorter) writeManifest(folder string, attachments []string) error {
	m := &types.AssetManifest{}
	for _, name := range attachments {
		p := filepath.Join(folder, name)
		info := types.AttachmentInfo{Name: name}
		if fi, err := os.Stat(p); err == nil {
			info.Size = fi.Size()
		}
		if strings.EqualFold(filepath.Ext(name), ".pdf") {
			if pages, err := api.PageCountFile(p); err == nil {
				info.Pages = pages
			} else {
				s.warnf("page count for %s failed: %v", name, err)
			}
		}
		m.Attachments = append(m.Attachments, info)
	}
	return m.Save(filepath.Join(folder, types.ManifestFileName))
}

// extractAttachments collects filenames from "[File]:" lines, sorted and
// de-duplicated.
func extractAttachments(msgs []types.Message) []string {
	seen := make(map[string]struct{})
	for _, m := range msgs {
		for _, line := range strings.Split(m.Content, "\n") {
			if match := fileLineRe.FindStringSubmatch(line); match != nil {
				seen[match[1]] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// copyAttachments locates each named file under the export root and copies it
// into folder. Files excluded by the configured patterns or already present
// are skipped; a file that cannot be found is logged, not fatal, since
// "[File]:" lines can also be literal text in conversation content.
func (s *Sorter) copyAttachments(folder string, names []string) error {
	for _, name := range names {
		if !s.included(name) {
			continue
		}
		dst := filepath.Join(folder, name)
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		src := findFile(s.exportDir, name)
		if src == "" {
			s.warnf("attachment %q not found under %s", name, s.exportDir)
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sorter) included(name string) bool {
	if len(s.patterns) == 0 {
		return true
	}
	for _, g := range s.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// findFile returns the first file named name anywhere under root, or "".
func findFile(root, name string) string {
	var found string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && d.Name() == name {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	return found
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("sorter: read attachment %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("sorter: create attachment dir: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("sorter: write attachment %s: %w", dst, err)
	}
	return nil
}

// loadExisting indexes prior sorted folders by conversation id so incremental
// runs can detect unchanged and extended conversations.
func (s *Sorter) loadExisting() (map[string]existing, error) {
	prior := make(map[string]existing)
	entries, err := os.ReadDir(s.outDir)
	if os.IsNotExist(err) {
		return prior, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sorter: read output dir %s: %w", s.outDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.Contains(e.Name(), "--") {
			continue
		}
		folder := filepath.Join(s.outDir, e.Name())
		conv, jsonPath, err := loadFolderConversation(folder)
		if err != nil {
			// An unreadable folder is treated as absent; it will be rewritten.
			s.warnf("unreadable sorted folder %s: %v", folder, err)
			continue
		}
		if conv.ID != "" {
			prior[conv.ID] = existing{folder: folder, jsonPath: jsonPath, messages: conv.Messages}
		}
	}
	return prior, nil
}

func loadFolderConversation(folder string) (*types.Conversation, string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, "", err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || name == types.ManifestFileName {
			continue
		}
		p := filepath.Join(folder, name)
		conv, err := types.LoadConversation(p)
		if err != nil {
			return nil, "", err
		}
		return conv, p, nil
	}
	return nil, "", fmt.Errorf("no conversation JSON in %s", folder)
}

// slugify produces a filesystem-safe folder stem from a title.
func slugify(title string) string {
	s := slug.Make(title)
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

func (s *Sorter) warnf(format string, v ...interface{}) {
	if s.log != nil {
		s.log.Warnf(format, v...)
	}
}
