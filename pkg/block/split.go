package block

import (
	"strings"

	"github.com/entrhq/lattice/pkg/types"
)

// Split turns a conversation's message list into its ordered block run.
//
// Each user message is paired with the assistant message that follows it in
// timeline order. A trailing user message with no reply becomes a final block
// with an empty assistant side; an assistant message with no preceding user
// message (possible when an export is truncated mid-pair) becomes a block
// with an empty user side. An attachment is assigned to every block whose
// text references it, preserving manifest order within the block.
func Split(conv *types.Conversation) []*Block {
	var blocks []*Block
	msgs := conv.Messages
	for i := 0; i < len(msgs); {
		b := &Block{Turn: len(blocks)}
		if msgs[i].Role == types.RoleUser {
			b.User = msgs[i].Content
			i++
			if i < len(msgs) && msgs[i].Role == types.RoleAssistant {
				b.Assistant = msgs[i].Content
				i++
			}
		} else {
			b.Assistant = msgs[i].Content
			i++
		}
		b.Attachments = referencedAttachments(conv.Attachments, b)
		blocks = append(blocks, b)
	}
	return blocks
}

// referencedAttachments filters the conversation's attachment manifest down
// to the names mentioned in either side of the block.
func referencedAttachments(manifest []string, b *Block) []string {
	var used []string
	for _, name := range manifest {
		if name == "" {
			continue
		}
		if strings.Contains(b.User, name) || strings.Contains(b.Assistant, name) {
			used = append(used, name)
		}
	}
	return used
}

// Join reassembles the message content of an ordered block run. It is the
// content-level inverse of Split: timestamps and model tags are not part of
// a block and are not reconstructed.
func Join(blocks []*Block) []types.Message {
	var msgs []types.Message
	for _, b := range blocks {
		msgs = append(msgs, b.Messages()...)
	}
	return msgs
}
