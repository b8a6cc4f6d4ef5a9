// Package search defines the query contract against the document index
// and its drivers. The index is an external collaborator: ranking
// internals stay behind the Search call.
package search

import (
	"context"
)

// QueryType selects the ranking mode of the index.
type QueryType string

const (
	// QueryTypeSimple is plain keyword/vector ranking.
	QueryTypeSimple QueryType = "simple"
	// QueryTypeSemantic applies a secondary semantic reranking model on
	// top of the recall set.
	QueryTypeSemantic QueryType = "semantic"
)

// CaptionExtractive requests extractive captions without highlighting.
const CaptionExtractive = "extractive|highlight-false"

// Request describes one search call. Text and Vector are independent:
// either may be empty/nil, enabling pure-vector and pure-text modes.
type Request struct {
	// Text is the keyword query. Empty means the text leg is skipped.
	Text string
	// Filter is a category exclusion in OData syntax,
	// e.g. `category ne 'archive'`. Empty means no filter.
	Filter string

	QueryType             QueryType
	QueryLanguage         string
	QuerySpeller          string
	SemanticConfiguration string

	// Top is the number of documents to return.
	Top int
	// QueryCaption requests caption extraction, e.g. CaptionExtractive.
	// Only honored with QueryTypeSemantic.
	QueryCaption string

	// Vector is the query embedding. Nil means the vector leg is skipped.
	Vector []float32
	// TopK is the vector recall depth.
	TopK int
	// VectorFields names the embedding field to search.
	VectorFields string
}

// Document is one retrieved document in index ranking order.
type Document struct {
	SourcePage string
	Content    string
	// Captions holds extractive caption fragments when requested,
	// nil otherwise.
	Captions []string
}

// Index is the search index interface.
type Index interface {
	Search(ctx context.Context, req *Request) ([]*Document, error)
}
