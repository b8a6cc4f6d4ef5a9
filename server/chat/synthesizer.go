package chat

import (
	"context"
	"encoding/json"

	"github.com/hrygo/ragchat/plugin/ai"
	"github.com/hrygo/ragchat/plugin/ai/window"
	"github.com/hrygo/ragchat/server/internal/errors"
)

// answerMaxTokens bounds the synthesized answer length.
const answerMaxTokens = 1024

// SynthesizedAnswer is the structured synthesis output.
type SynthesizedAnswer struct {
	Topic  string `json:"topic"`
	Answer string `json:"answer"`
}

// AnswerSynthesizer produces a sourced answer grounded in retrieved text.
type AnswerSynthesizer struct {
	completion ai.CompletionService
	counter    ai.TokenCounter
	tokenLimit int
}

// NewAnswerSynthesizer creates an AnswerSynthesizer.
func NewAnswerSynthesizer(completion ai.CompletionService, counter ai.TokenCounter, tokenLimit int) *AnswerSynthesizer {
	return &AnswerSynthesizer{
		completion: completion,
		counter:    counter,
		tokenLimit: tokenLimit,
	}
}

// Synthesize issues one completion call and parses its strict JSON
// output. The window deliberately carries no few-shots and no history:
// the sources fold into the single user message because the model does
// not handle lengthy system messages combined with multi-turn history
// well, and adherence to the JSON contract degrades.
//
// The JSON parse is intentionally not defensive. The prompt guarantees
// the shape; a violation is a model or prompt regression worth surfacing
// loudly, so it aborts the turn as a typed error.
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, question, grounding string) (*SynthesizedAnswer, []ai.Message, error) {
	anchor := question + "\n\nSources:\n" + grounding

	messages := window.Build(answerSystemPrompt, nil, anchor, nil, s.counter, s.tokenLimit, defaultMaxHistoryTurns)

	output, err := s.completion.Complete(ctx, &ai.CompletionRequest{
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   answerMaxTokens,
		N:           1,
	})
	if err != nil {
		return nil, messages, upstreamError("answer synthesis failed", err)
	}

	answer := &SynthesizedAnswer{}
	if err := json.Unmarshal([]byte(output), answer); err != nil {
		return nil, messages, errors.MalformedAnswer("answer output is not valid JSON", err)
	}
	if answer.Answer == "" {
		return nil, messages, errors.MalformedAnswer("answer output is missing the answer field", nil)
	}
	return answer, messages, nil
}
