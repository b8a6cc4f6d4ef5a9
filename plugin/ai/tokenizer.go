package ai

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text length in model token units.
type TokenCounter interface {
	CountTokens(text string) int
}

// Tokenizer counts tokens using the cl100k_base encoding.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenizer creates a tokenizer for the given model. Falls back to
// cl100k_base when the model is unknown to tiktoken.
func NewTokenizer(model string) (*Tokenizer, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{encoding: encoding}, nil
}

// CountTokens returns the token count of a single text.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}
