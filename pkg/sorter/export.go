package sorter

import (
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path"
	"strings"

	"github.com/entrhq/lattice/pkg/types"
)

// rawConversation is one conversation as it appears in the export's
// conversations.json. The mapping is a node graph; the linear timeline is the
// parent chain from CurrentNode back to the root.
type rawConversation struct {
	Title          string             `json:"title"`
	ConversationID string             `json:"conversation_id"`
	CreateTime     float64            `json:"create_time"`
	Model          string             `json:"model"`
	CurrentNode    string             `json:"current_node"`
	Mapping        map[string]rawNode `json:"mapping"`
}

type rawNode struct {
	Parent  string      `json:"parent"`
	Message *rawMessage `json:"message"`
}

type rawMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	CreateTime *float64 `json:"create_time"`
	Content    struct {
		Parts []json.RawMessage `json:"parts"`
	} `json:"content"`
	Metadata struct {
		IsUserSystemMessage bool   `json:"is_user_system_message"`
		ModelSlug           string `json:"model_slug"`
	} `json:"metadata"`
}

// rawPart is a non-string message part: an audio transcription or a reference
// to an uploaded asset.
type rawPart struct {
	ContentType  string `json:"content_type"`
	Text         string `json:"text"`
	AssetPointer string `json:"asset_pointer"`
}

// loadExport reads conversations.json and assets.json from the export dir.
// The asset map goes from asset pointer to the URL the file was served from;
// only the URL's base name matters for locating the file on disk.
func loadExport(convPath, assetsPath string) ([]rawConversation, map[string]string, error) {
	cb, err := os.ReadFile(convPath)
	if err != nil {
		return nil, nil, fmt.Errorf("sorter: read %s: %w", convPath, err)
	}
	var convs []rawConversation
	if err := json.Unmarshal(cb, &convs); err != nil {
		return nil, nil, fmt.Errorf("sorter: decode %s: %w", convPath, err)
	}

	assets := make(map[string]string)
	ab, err := os.ReadFile(assetsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("sorter: read %s: %w", assetsPath, err)
	}
	if err := json.Unmarshal(ab, &assets); err != nil {
		return nil, nil, fmt.Errorf("sorter: decode %s: %w", assetsPath, err)
	}
	return convs, assets, nil
}

// extractMessages linearizes a conversation by walking the parent chain from
// the current node, keeping user and assistant turns. Tool output counts as
// assistant; a user-authored system message counts as user. Asset references
// become "[File]: <name>" lines, audio transcriptions "[Transcript]: …".
func extractMessages(conv rawConversation, assetMap map[string]string) []types.Message {
	var msgs []types.Message
	nodeID := conv.CurrentNode
	for nodeID != "" {
		node, ok := conv.Mapping[nodeID]
		if !ok {
			break
		}
		nodeID = node.Parent

		msg := node.Message
		if msg == nil || len(msg.Content.Parts) == 0 {
			continue
		}

		var role types.Role
		switch msg.Author.Role {
		case "assistant", "tool":
			role = types.RoleAssistant
		case "user":
			role = types.RoleUser
		case "system":
			if !msg.Metadata.IsUserSystemMessage {
				continue
			}
			role = types.RoleUser
		default:
			continue
		}

		var texts []string
		for _, raw := range msg.Content.Parts {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				texts = append(texts, s)
				continue
			}
			var part rawPart
			if err := json.Unmarshal(raw, &part); err != nil {
				continue
			}
			switch {
			case part.ContentType == "audio_transcription":
				texts = append(texts, "[Transcript]: "+part.Text)
			case part.AssetPointer != "":
				name := "MISSING"
				if url, ok := assetMap[part.AssetPointer]; ok && url != "" {
					name = path.Base(url)
				}
				texts = append(texts, "[File]: "+name)
			}
		}

		msgs = append(msgs, types.Message{
			Role:      role,
			Content:   strings.TrimSpace(strings.Join(texts, "\n\n")),
			Timestamp: msg.CreateTime,
			Model:     msg.Metadata.ModelSlug,
		})
	}

	// The walk went current node to root; the timeline reads the other way.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}

// cleanContent undoes HTML entity escaping from the export and replaces the
// replacement character the export uses where apostrophes were lost.
func cleanContent(msgs []types.Message) {
	for i := range msgs {
		msgs[i].Content = html.UnescapeString(msgs[i].Content)
		msgs[i].Content = strings.ReplaceAll(msgs[i].Content, "�", "'")
	}
}

// groupMessages merges consecutive same-role messages into one turn so the
// result strictly alternates speakers.
func groupMessages(msgs []types.Message) []types.Message {
	if len(msgs) == 0 {
		return nil
	}
	grouped := []types.Message{msgs[0]}
	for _, m := range msgs[1:] {
		last := &grouped[len(grouped)-1]
		if m.Role == last.Role {
			last.Content += "\n\n" + m.Content
			continue
		}
		grouped = append(grouped, m)
	}
	return grouped
}

// messagesEqual reports whether two message lists carry the same turns. Used
// for prefix comparison on incremental runs.
func messagesEqual(a, b []types.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Role != b[i].Role || a[i].Content != b[i].Content || a[i].Model != b[i].Model {
			return false
		}
		at, bt := a[i].Timestamp, b[i].Timestamp
		switch {
		case at == nil && bt == nil:
		case at == nil || bt == nil:
			return false
		case *at != *bt:
			return false
		}
	}
	return true
}
