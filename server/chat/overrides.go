package chat

import (
	"fmt"

	"github.com/hrygo/ragchat/server/internal/errors"
)

// RetrievalMode selects which legs of the search index are queried.
type RetrievalMode string

const (
	// RetrievalModeDefault behaves like hybrid.
	RetrievalModeDefault RetrievalMode = ""
	// RetrievalModeText queries keywords only.
	RetrievalModeText RetrievalMode = "text"
	// RetrievalModeVectors queries embeddings only.
	RetrievalModeVectors RetrievalMode = "vectors"
	// RetrievalModeHybrid queries both legs.
	RetrievalModeHybrid RetrievalMode = "hybrid"
)

// defaultTop is the retrieval result count when unset.
const defaultTop = 3

// Overrides enumerates every per-turn option and its effect. It replaces
// ad-hoc per-key lookups with a struct validated at the boundary.
type Overrides struct {
	// RetrievalMode selects text, vectors, or hybrid retrieval.
	// Default/empty behaves like hybrid.
	RetrievalMode RetrievalMode
	// SemanticRanker applies the index's secondary semantic reranking
	// model. Only effective when the mode includes a text leg.
	SemanticRanker bool
	// SemanticCaptions projects extractive captions instead of document
	// bodies. Requires SemanticRanker and a text leg.
	SemanticCaptions bool
	// Top is the number of documents to ground the answer on (default 3).
	Top int
	// ExcludeCategory removes a document category from retrieval.
	ExcludeCategory string
	// ConversationID resumes an existing conversation. Empty means a
	// fresh identifier is generated.
	ConversationID string
	// IsNewConversation stamps the conversation topic from this turn's
	// synthesized answer.
	IsNewConversation bool
	// SuggestFollowUp enables the follow-up question stage.
	SuggestFollowUp bool
}

// hasText reports whether the mode includes the keyword leg.
func (o *Overrides) hasText() bool {
	switch o.RetrievalMode {
	case RetrievalModeText, RetrievalModeHybrid, RetrievalModeDefault:
		return true
	}
	return false
}

// hasVector reports whether the mode includes the embedding leg.
func (o *Overrides) hasVector() bool {
	switch o.RetrievalMode {
	case RetrievalModeVectors, RetrievalModeHybrid, RetrievalModeDefault:
		return true
	}
	return false
}

// Validate checks option values and applies defaults.
func (o *Overrides) Validate() error {
	switch o.RetrievalMode {
	case RetrievalModeDefault, RetrievalModeText, RetrievalModeVectors, RetrievalModeHybrid:
	default:
		return errors.InvalidArgument(fmt.Sprintf("unknown retrieval mode: %q", o.RetrievalMode))
	}
	if o.Top < 0 {
		return errors.InvalidArgument("top must not be negative")
	}
	if o.Top == 0 {
		o.Top = defaultTop
	}
	return nil
}
