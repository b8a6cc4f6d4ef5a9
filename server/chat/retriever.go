package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrygo/ragchat/plugin/ai"
	"github.com/hrygo/ragchat/plugin/ai/search"
)

// vectorRecallDepth is the vector leg recall depth on search calls.
const vectorRecallDepth = 50

// embeddingFieldName names the embedding field on the index.
const embeddingFieldName = "contentVector"

// Retriever issues one mode-dependent search call and projects the
// results into "<sourcePage>: <text>" lines.
type Retriever struct {
	embedding ai.EmbeddingService
	index     search.Index
}

// NewRetriever creates a Retriever.
func NewRetriever(embedding ai.EmbeddingService, index search.Index) *Retriever {
	return &Retriever{
		embedding: embedding,
		index:     index,
	}
}

// Retrieve runs the search for the rewritten query and returns the
// projected result lines plus the lines joined into the grounding block.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, overrides *Overrides) ([]string, string, error) {
	hasText := overrides.hasText()
	hasVector := overrides.hasVector()
	useSemanticCaptions := overrides.SemanticCaptions && hasText

	// If retrieval mode includes vectors, compute an embedding for the
	// query. The embedding always comes from the rewritten text, even
	// when the text leg itself is dropped below.
	var queryVector []float32
	if hasVector {
		vector, err := r.embedding.Embed(ctx, queryText)
		if err != nil {
			return nil, "", upstreamError("query embedding failed", err)
		}
		queryVector = vector
	}

	// Only keep the text query if the retrieval mode uses text,
	// otherwise drop it.
	if !hasText {
		queryText = ""
	}

	req := &search.Request{
		Text:   queryText,
		Filter: buildCategoryFilter(overrides.ExcludeCategory),
		Top:    overrides.Top,
	}
	// Use the semantic reranker if requested and if retrieval mode is
	// text or hybrid.
	if overrides.SemanticRanker && hasText {
		req.QueryType = search.QueryTypeSemantic
		req.QueryLanguage = "en-us"
		req.QuerySpeller = "lexicon"
		req.SemanticConfiguration = "default"
		if useSemanticCaptions {
			req.QueryCaption = search.CaptionExtractive
		}
	} else {
		req.QueryType = search.QueryTypeSimple
	}
	// Vector parameters only when an embedding was actually computed.
	if len(queryVector) > 0 {
		req.Vector = queryVector
		req.TopK = vectorRecallDepth
		req.VectorFields = embeddingFieldName
	}

	documents, err := r.index.Search(ctx, req)
	if err != nil {
		return nil, "", upstreamError("search failed", err)
	}

	results := make([]string, 0, len(documents))
	for _, doc := range documents {
		if useSemanticCaptions && len(doc.Captions) > 0 {
			results = append(results, doc.SourcePage+": "+nonewlines(strings.Join(doc.Captions, " . ")))
		} else {
			results = append(results, doc.SourcePage+": "+nonewlines(doc.Content))
		}
	}
	return results, strings.Join(results, "\n"), nil
}

// buildCategoryFilter renders the category exclusion with single quotes
// doubled, e.g. Alice's -> category ne 'Alice''s'.
func buildCategoryFilter(excludeCategory string) string {
	if excludeCategory == "" {
		return ""
	}
	return fmt.Sprintf("category ne '%s'", strings.ReplaceAll(excludeCategory, "'", "''"))
}

// nonewlines collapses embedded line breaks so each result line stays
// single-line, which the grounding block format requires.
func nonewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}
