// Package block implements the unit of storage and traversal: one user turn,
// its paired assistant turn, and the attachments either of them references.
// A conversation is split into an ordered run of blocks and reassembled from
// them; encoding is a self-describing JSON form with an exact inverse.
package block

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/entrhq/lattice/pkg/types"
)

// Block is one exchange unit. Turn is the zero-based position within the
// conversation. A block with Terminal set is the end-of-conversation marker
// and carries no content. Blocks are immutable once written.
type Block struct {
	Turn        int      `json:"turn"`
	User        string   `json:"user"`
	Assistant   string   `json:"assistant"`
	Attachments []string `json:"attachments,omitempty"`
	Tokens      int      `json:"tokens,omitempty"`
	Terminal    bool     `json:"terminal,omitempty"`
}

// Terminator returns the sentinel block written once after a conversation's
// last real block.
func Terminator() *Block {
	return &Block{Terminal: true}
}

// Encode serializes the block. Decode(Encode(b)) reproduces b exactly.
func Encode(b *Block) ([]byte, error) {
	if b.Terminal {
		// Keep the marker minimal and stable regardless of other fields.
		return []byte("{\n  \"terminal\": true\n}\n"), nil
	}
	out, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("block: encode turn %d: %w", b.Turn, err)
	}
	return append(out, '\n'), nil
}

// Decode is the inverse of Encode.
func Decode(raw []byte) (*Block, error) {
	var b Block
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("block: decode: %w", err)
	}
	return &b, nil
}

// ContentEquals reports whether two blocks carry the same conversational
// content. Token counts are deliberately ignored so that re-stores with a
// different tokenizer still compare equal.
func (b *Block) ContentEquals(other *Block) bool {
	if b.Terminal != other.Terminal || b.User != other.User || b.Assistant != other.Assistant {
		return false
	}
	if len(b.Attachments) != len(other.Attachments) {
		return false
	}
	for i := range b.Attachments {
		if b.Attachments[i] != other.Attachments[i] {
			return false
		}
	}
	return true
}

// Messages expands the block back into its message form, the inverse of
// Split for content. Terminal blocks and empty sides produce no messages.
func (b *Block) Messages() []types.Message {
	if b.Terminal {
		return nil
	}
	var msgs []types.Message
	if b.User != "" {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: b.User})
	}
	if b.Assistant != "" {
		msgs = append(msgs, types.Message{Role: types.RoleAssistant, Content: b.Assistant})
	}
	return msgs
}
