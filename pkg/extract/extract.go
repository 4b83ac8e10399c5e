// Package extract pulls the conversation and asset payloads out of a
// chat.html export and writes them as conversations.json and assets.json next
// to it. It tries a static HTML parse first and falls back to evaluating the
// page in a headless browser when the payloads are not inlined.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/entrhq/lattice/pkg/logging"
)

// ChatFileName is the export file the extractor reads.
const ChatFileName = "chat.html"

// Extractor reads one export directory.
type Extractor struct {
	exportDir string
	log       *logging.Logger
}

// New creates an extractor for exportDir. log may be nil.
func New(exportDir string, log *logging.Logger) *Extractor {
	return &Extractor{exportDir: exportDir, log: log}
}

// Run extracts the payloads and writes conversations.json and assets.json
// into the export directory.
func (e *Extractor) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	htmlPath := filepath.Join(e.exportDir, ChatFileName)

	convs, assets, err := parseChatHTML(htmlPath)
	if err != nil {
		if e.log != nil {
			e.log.Warnf("static extraction failed (%v), falling back to browser", err)
		}
		convs, assets, err = evaluateInBrowser(htmlPath)
		if err != nil {
			return err
		}
	}

	if err := writeJSON(filepath.Join(e.exportDir, "conversations.json"), convs); err != nil {
		return err
	}
	return writeJSON(filepath.Join(e.exportDir, "assets.json"), assets)
}

// writeJSON pretty-prints a raw payload to path.
func writeJSON(path string, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("extract: indent payload for %s: %w", path, err)
	}
	buf.WriteByte('\n')
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("extract: write %s: %w", path, err)
	}
	return nil
}
