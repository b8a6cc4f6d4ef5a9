package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hrygo/ragchat/plugin/ai"
	"github.com/hrygo/ragchat/plugin/ai/window"
	"github.com/hrygo/ragchat/server/internal/errors"
)

// followUpMaxTokens bounds the follow-up output length.
const followUpMaxTokens = 1024

// followUpMaxHistoryTurns bounds how many user turns feed the follow-up
// window.
const followUpMaxHistoryTurns = 5

// FollowUpGenerator proposes the questions a user would likely ask next.
type FollowUpGenerator struct {
	completion ai.CompletionService
	counter    ai.TokenCounter
	tokenLimit int
}

// NewFollowUpGenerator creates a FollowUpGenerator.
func NewFollowUpGenerator(completion ai.CompletionService, counter ai.TokenCounter, tokenLimit int) *FollowUpGenerator {
	return &FollowUpGenerator{
		completion: completion,
		counter:    counter,
		tokenLimit: tokenLimit,
	}
}

// Generate issues one completion call and parses its output as a JSON
// array of questions. Without sufficient history the model returns a
// natural-language refusal instead of the requested array; that is an
// expected condition, so any parse failure yields an empty list rather
// than aborting the turn. Transport failures still propagate.
func (g *FollowUpGenerator) Generate(ctx context.Context, question string, history []window.Turn) ([]string, []ai.Message, error) {
	budget := g.tokenLimit - g.counter.CountTokens(queryWrapPrefix+question)

	messages := window.Build(followUpPromptTemplate, nil, followUpQuestionsPrompt, history, g.counter, budget, followUpMaxHistoryTurns)

	output, err := g.completion.Complete(ctx, &ai.CompletionRequest{
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   followUpMaxTokens,
		N:           1,
	})
	if err != nil {
		return nil, messages, upstreamError("follow-up generation failed", err)
	}

	var followUps []string
	if err := json.Unmarshal([]byte(output), &followUps); err != nil {
		slog.Debug("follow-up output was not a JSON array, returning empty list",
			"error", errors.MalformedFollowUp(err).Error())
		return []string{}, messages, nil
	}
	return followUps, messages, nil
}
