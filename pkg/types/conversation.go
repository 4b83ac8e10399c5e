// Package types provides the shared domain types for the Lattice archive.
// These mirror the on-disk JSON produced by the sorter: one folder per
// conversation holding a structured message list plus its attachment files.
package types

import (
	"encoding/json"
	"fmt"
	"os"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation, in timeline order.
type Message struct {
	Role      Role     `json:"role"`
	Content   string   `json:"content"`
	Timestamp *float64 `json:"timestamp"`
	Model     string   `json:"model,omitempty"`
}

// Conversation is the normalized record for one conversation as written by
// the sorter: metadata, the ordered message list, and the names of the
// attachment files stored alongside it.
type Conversation struct {
	Title        string    `json:"title"`
	ID           string    `json:"id"`
	CreateTime   float64   `json:"create_time,omitempty"`
	Model        string    `json:"model,omitempty"`
	MessageCount int       `json:"message_count"`
	Attachments  []string  `json:"attachments"`
	Messages     []Message `json:"messages"`
}

// LoadConversation reads and decodes a sorted conversation JSON file.
func LoadConversation(path string) (*Conversation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("types: read conversation %s: %w", path, err)
	}
	var c Conversation
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("types: decode conversation %s: %w", path, err)
	}
	return &c, nil
}

// Save writes the conversation as indented JSON to path.
func (c *Conversation) Save(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("types: encode conversation: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("types: write conversation %s: %w", path, err)
	}
	return nil
}

// AttachmentInfo describes one attachment file in a conversation folder.
// Pages is only set for PDF attachments.
type AttachmentInfo struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages,omitempty"`
}

// AssetManifest lists the attachment files copied into a conversation folder
// together with whatever metadata could be derived from them.
type AssetManifest struct {
	Attachments []AttachmentInfo `json:"attachments"`
}
