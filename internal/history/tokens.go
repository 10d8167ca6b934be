package history

import (
	"github.com/pkoukk/tiktoken-go"

	"shopassist/internal/domain"
)

// TokenCounter estimates how many tokens a piece of text costs in the
// generation oracle's context window.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with a BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the cl100k_base encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (t *TiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// EstimateCounter approximates one token per four bytes.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

// NewCounter returns the counter named by kind, falling back to the estimate
// when the encoding cannot be loaded.
func NewCounter(kind string) TokenCounter {
	if kind == "tiktoken" {
		if c, err := NewTiktokenCounter(); err == nil {
			return c
		}
	}
	return EstimateCounter{}
}

// turnTokens adds a fixed per-message overhead for role and separators.
func turnTokens(c TokenCounter, t domain.Turn) int {
	return 4 + c.Count(t.Role) + c.Count(t.Parts)
}
