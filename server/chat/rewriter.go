package chat

import (
	"context"
	"strings"

	"github.com/hrygo/ragchat/plugin/ai"
	"github.com/hrygo/ragchat/plugin/ai/window"
)

// rewriteMaxTokens bounds the rewritten query length.
const rewriteMaxTokens = 32

// QueryRewriter turns the latest question plus conversation history into
// a compact search query.
type QueryRewriter struct {
	completion ai.CompletionService
	counter    ai.TokenCounter
	tokenLimit int
}

// NewQueryRewriter creates a QueryRewriter.
func NewQueryRewriter(completion ai.CompletionService, counter ai.TokenCounter, tokenLimit int) *QueryRewriter {
	return &QueryRewriter{
		completion: completion,
		counter:    counter,
		tokenLimit: tokenLimit,
	}
}

// Rewrite issues one completion call and returns the search query along
// with the message window it sent. When the model signals it cannot
// generate a query (the literal "0"), the raw question is returned
// verbatim; that is a refusal signal, not an error.
func (r *QueryRewriter) Rewrite(ctx context.Context, question string, history []window.Turn) (string, []ai.Message, error) {
	anchor := queryWrapPrefix + question
	budget := r.tokenLimit - r.counter.CountTokens(anchor)

	messages := window.Build(queryPromptTemplate, queryPromptFewShots, anchor, history, r.counter, budget, defaultMaxHistoryTurns)

	output, err := r.completion.Complete(ctx, &ai.CompletionRequest{
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   rewriteMaxTokens,
		N:           1,
	})
	if err != nil {
		return "", messages, upstreamError("query rewrite failed", err)
	}

	if strings.TrimSpace(output) == rewriteRefusalSentinel {
		// Use the last user input if we failed to generate a better query
		return question, messages, nil
	}
	return output, messages, nil
}
