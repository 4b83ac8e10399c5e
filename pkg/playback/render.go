package playback

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"

	"github.com/entrhq/lattice/pkg/block"
)

// RenderPlain formats a block as plain text for dump output.
func RenderPlain(b *block.Block) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- turn %d", b.Turn+1)
	if b.Tokens > 0 {
		fmt.Fprintf(&sb, " (~%d tokens)", b.Tokens)
	}
	sb.WriteString(" ---\n")

	sb.WriteString("You:\n")
	sb.WriteString(b.User)
	sb.WriteString("\n\nAssistant:\n")
	sb.WriteString(b.Assistant)
	sb.WriteString("\n")

	if len(b.Attachments) > 0 {
		fmt.Fprintf(&sb, "\n[attachments: %s]\n", strings.Join(b.Attachments, ", "))
	}
	return sb.String()
}

// renderStyled formats a block for the interactive view, with lipgloss
// speaker labels and syntax-highlighted code fences in the assistant text.
func renderStyled(b *block.Block) string {
	var sb strings.Builder
	sb.WriteString(userLabelStyle.Render("You"))
	sb.WriteString("\n")
	sb.WriteString(bodyStyle.Render(b.User))
	sb.WriteString("\n\n")
	sb.WriteString(assistantLabelStyle.Render("Assistant"))
	sb.WriteString("\n")
	sb.WriteString(highlightFences(b.Assistant))
	if len(b.Attachments) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(attachmentStyle.Render("attachments: " + strings.Join(b.Attachments, ", ")))
	}
	return sb.String()
}

// highlightFences syntax-highlights fenced code in s for terminal output.
// Text outside fences and anything that fails to highlight passes through
// unchanged.
func highlightFences(s string) string {
	lines := strings.Split(s, "\n")
	var out strings.Builder
	var code []string
	var lang string
	inFence := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			if !inFence {
				inFence = true
				lang = strings.TrimSpace(strings.TrimPrefix(line, "```"))
				code = code[:0]
				out.WriteString(line + "\n")
				continue
			}
			inFence = false
			out.WriteString(highlightCode(strings.Join(code, "\n"), lang))
			out.WriteString("\n" + line + "\n")
			continue
		}
		if inFence {
			code = append(code, line)
			continue
		}
		out.WriteString(bodyStyle.Render(line) + "\n")
	}
	if inFence {
		// Unclosed fence; emit what we have without highlighting.
		out.WriteString(strings.Join(code, "\n"))
		return out.String()
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func highlightCode(code, lang string) string {
	if lang == "" {
		lang = "text"
	}
	var sb strings.Builder
	if err := quick.Highlight(&sb, code, lang, "terminal256", "monokai"); err != nil {
		return code
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
