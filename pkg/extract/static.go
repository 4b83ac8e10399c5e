package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// parseChatHTML pulls the jsonData and assetsJson script globals out of a
// chat.html export without a browser. It works whenever the export inlines
// the payloads as literal JS values, which every export we have seen does.
func parseChatHTML(path string) (convs, assets json.RawMessage, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: parse %s: %w", path, err)
	}

	for _, script := range scriptTexts(doc) {
		if convs == nil {
			convs = extractAssignment(script, "jsonData")
		}
		if assets == nil {
			assets = extractAssignment(script, "assetsJson")
		}
	}
	if convs == nil {
		return nil, nil, fmt.Errorf("extract: no jsonData assignment in %s", path)
	}
	if assets == nil {
		return nil, nil, fmt.Errorf("extract: no assetsJson assignment in %s", path)
	}
	return convs, assets, nil
}

// scriptTexts collects the text content of every script element in the
// document.
func scriptTexts(doc *html.Node) []string {
	var texts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			var sb strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					sb.WriteString(c.Data)
				}
			}
			texts = append(texts, sb.String())
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return texts
}

// extractAssignment finds "<name> = <literal>" in JS source and decodes the
// literal as one JSON value. The decoder naturally stops at the end of the
// value, so trailing JS (semicolons, further statements) is ignored.
// Occurrences of name that are not such an assignment, like comparisons or
// call arguments, are skipped and the scan continues.
func extractAssignment(src, name string) json.RawMessage {
	for idx := strings.Index(src, name); idx >= 0; {
		rest := src[idx+len(name):]
		if raw := decodeAssignedValue(rest); raw != nil {
			return raw
		}
		next := strings.Index(rest, name)
		if next < 0 {
			return nil
		}
		idx += len(name) + next
	}
	return nil
}

// decodeAssignedValue decodes "= <array-or-object literal>" at the start of
// rest, or returns nil when rest is not that.
func decodeAssignedValue(rest string) json.RawMessage {
	trimmed := strings.TrimLeft(rest, " \t\r\n")
	if !strings.HasPrefix(trimmed, "=") {
		return nil
	}
	value := strings.TrimLeft(trimmed[1:], " \t\r\n")
	if len(value) == 0 || (value[0] != '[' && value[0] != '{') {
		return nil
	}
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(value)).Decode(&raw); err != nil {
		return nil
	}
	return raw
}
