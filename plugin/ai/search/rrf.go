package search

import (
	"sort"
)

// rrfDampingFactor is the k in RRF(d) = Σ 1 / (k + rank(d)).
// k = 60 is a common default.
const rrfDampingFactor = 60

// fuseWithRRF fuses the text and vector result lists using Reciprocal
// Rank Fusion, keyed by source page. If one list is empty the other is
// returned as-is.
func fuseWithRRF(textResults, vectorResults []*Document) []*Document {
	if len(textResults) == 0 {
		return vectorResults
	}
	if len(vectorResults) == 0 {
		return textResults
	}

	scoreMap := make(map[string]float64)
	docMap := make(map[string]*Document)

	for rank, doc := range textResults {
		scoreMap[doc.SourcePage] += 1.0 / float64(rrfDampingFactor+rank+1)
		if _, exists := docMap[doc.SourcePage]; !exists {
			docMap[doc.SourcePage] = doc
		}
	}
	for rank, doc := range vectorResults {
		scoreMap[doc.SourcePage] += 1.0 / float64(rrfDampingFactor+rank+1)
		if _, exists := docMap[doc.SourcePage]; !exists {
			docMap[doc.SourcePage] = doc
		}
	}

	type scoredDoc struct {
		doc   *Document
		score float64
	}
	scored := make([]scoredDoc, 0, len(scoreMap))
	for id, score := range scoreMap {
		scored = append(scored, scoredDoc{doc: docMap[id], score: score})
	}

	// Sort by RRF score descending; ties broken by source page for a
	// deterministic order.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].doc.SourcePage < scored[j].doc.SourcePage
	})

	results := make([]*Document, len(scored))
	for i, sd := range scored {
		results[i] = sd.doc
	}
	return results
}
