package block

import (
	"reflect"
	"testing"

	"github.com/entrhq/lattice/pkg/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		b    *Block
	}{
		{
			name: "full block",
			b: &Block{
				Turn:        3,
				User:        "please plot the data\n\n[File]: plot.png",
				Assistant:   "Here is the plot.",
				Attachments: []string{"plot.png"},
				Tokens:      42,
			},
		},
		{
			name: "unpaired user turn",
			b:    &Block{Turn: 0, User: "hello?"},
		},
		{
			name: "terminal marker",
			b:    Terminator(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.b)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !reflect.DeepEqual(tt.b, got) {
				t.Errorf("Round trip mismatch: %+v vs %+v", tt.b, got)
			}
			if !tt.b.ContentEquals(got) {
				t.Errorf("ContentEquals false after round trip")
			}
			if len(got.Attachments) != len(tt.b.Attachments) {
				t.Errorf("Attachment count mismatch: %d vs %d", len(got.Attachments), len(tt.b.Attachments))
			}
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Error("Expected decode error for non-JSON input")
	}
	if _, err := Decode([]byte(`{"unexpected_field": 1}`)); err == nil {
		t.Error("Expected decode error for unknown fields")
	}
}

func TestTerminalEncodingIsStable(t *testing.T) {
	a, err := Encode(Terminator())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// A terminal marker ignores any stray content fields.
	b, err := Encode(&Block{Terminal: true, User: "ignored", Tokens: 9})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("Terminal encodings differ: %q vs %q", a, b)
	}
	got, err := Decode(a)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.Terminal {
		t.Error("Expected decoded marker to be terminal")
	}
}

func TestContentEqualsIgnoresTokens(t *testing.T) {
	a := &Block{User: "u", Assistant: "a", Tokens: 10}
	b := &Block{User: "u", Assistant: "a", Tokens: 0}
	if !a.ContentEquals(b) {
		t.Error("Expected token counts to be ignored")
	}
	c := &Block{User: "u", Assistant: "different"}
	if a.ContentEquals(c) {
		t.Error("Expected differing assistant text to compare unequal")
	}
}

func TestNilTokenCounterCountsZero(t *testing.T) {
	var tc *TokenCounter
	if got := tc.Count("some text"); got != 0 {
		t.Errorf("Expected 0 from nil counter, got %d", got)
	}
	blocks := []*Block{{User: "u"}}
	tc.Annotate(blocks) // must not panic
	if blocks[0].Tokens != 0 {
		t.Errorf("Expected unannotated block, got %d tokens", blocks[0].Tokens)
	}
}

func TestMessagesExpansion(t *testing.T) {
	b := &Block{User: "question", Assistant: "answer"}
	msgs := b.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != types.RoleUser || msgs[1].Role != types.RoleAssistant {
		t.Errorf("Unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if got := Terminator().Messages(); got != nil {
		t.Errorf("Expected no messages from terminal marker, got %d", len(got))
	}
}
