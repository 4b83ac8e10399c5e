package block

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// encodingName is the BPE used for counting; matches the GPT exports the
// archive ingests.
const encodingName = "cl100k_base"

// TokenCounter annotates blocks with approximate token counts. A nil counter
// is valid and counts everything as zero, so stores never fail on tokenizer
// initialization problems.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter initializes the tokenizer. The encoding data may be fetched
// on first use, so this can fail offline; callers should degrade to a nil
// counter rather than aborting.
func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("block: init tokenizer %s: %w", encodingName, err)
	}
	return &TokenCounter{enc: enc}, nil
}

// Count returns the token count of s, or zero on a nil counter.
func (t *TokenCounter) Count(s string) int {
	if t == nil || t.enc == nil {
		return 0
	}
	return len(t.enc.Encode(s, nil, nil))
}

// Annotate sets the token count on every non-terminal block in the run.
func (t *TokenCounter) Annotate(blocks []*Block) {
	if t == nil {
		return
	}
	for _, b := range blocks {
		if !b.Terminal {
			b.Tokens = t.Count(b.User) + t.Count(b.Assistant)
		}
	}
}
