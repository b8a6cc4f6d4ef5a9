package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// MockDocument is an indexed document for the in-memory index.
type MockDocument struct {
	SourcePage string
	Content    string
	Category   string
	Embedding  []float32
}

// MockIndex is an in-memory implementation of Index for development mode
// and testing. Text recall ranks by term frequency, vector recall by
// cosine similarity, and both legs fuse with RRF like the real driver.
type MockIndex struct {
	mu   sync.RWMutex
	docs []*MockDocument
}

// NewMockIndex creates a new MockIndex seeded with a small corpus.
func NewMockIndex() *MockIndex {
	mock := &MockIndex{}
	mock.seedData()
	return mock
}

// NewEmptyMockIndex creates a MockIndex without seed data.
func NewEmptyMockIndex() *MockIndex {
	return &MockIndex{}
}

// Add indexes a document.
func (m *MockIndex) Add(doc *MockDocument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)
}

// seedData populates the mock with sample documents.
func (m *MockIndex) seedData() {
	m.docs = []*MockDocument{
		{
			SourcePage: "advising-overview.pdf#page=1",
			Content:    "Academic advising is a service provided by institutions of higher education to support students in their academic journey. Advisors meet with students at least once per term.",
			Category:   "advising",
			Embedding:  []float32{0.9, 0.1, 0.1},
		},
		{
			SourcePage: "advising-services.pdf#page=2",
			Content:    "Advisors help with degree planning, financial aid questions, and career advice. Appointments can be booked online through the student portal.",
			Category:   "advising",
			Embedding:  []float32{0.8, 0.3, 0.1},
		},
		{
			SourcePage: "registration-guide.pdf#page=4",
			Content:    "Course registration opens two weeks before each term. A registration hold is placed until the advising session is complete.",
			Category:   "registration",
			Embedding:  []float32{0.4, 0.8, 0.2},
		},
		{
			SourcePage: "financial-aid.pdf#page=1",
			Content:    "Financial aid packages include grants, loans, and work-study. The FAFSA deadline is March 1 for priority consideration.",
			Category:   "financial",
			Embedding:  []float32{0.1, 0.2, 0.9},
		},
	}
}

func (m *MockIndex) Search(ctx context.Context, req *Request) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	top := req.Top
	if top <= 0 {
		top = 3
	}

	excludeCategory, err := parseFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	candidates := make([]*MockDocument, 0, len(m.docs))
	for _, doc := range m.docs {
		if excludeCategory != "" && doc.Category == excludeCategory {
			continue
		}
		candidates = append(candidates, doc)
	}

	var textDocs, vectorDocs []*Document
	if req.Text != "" {
		textDocs = m.rankByTerms(candidates, req)
	}
	if len(req.Vector) > 0 {
		topK := req.TopK
		if topK <= 0 {
			topK = defaultVectorRecall
		}
		vectorDocs = m.rankByCosine(candidates, req.Vector, topK)
	}

	fused := fuseWithRRF(textDocs, vectorDocs)
	if len(fused) > top {
		fused = fused[:top]
	}
	return fused, nil
}

// rankByTerms orders candidates by query term frequency.
func (m *MockIndex) rankByTerms(candidates []*MockDocument, req *Request) []*Document {
	terms := strings.Fields(strings.ToLower(req.Text))
	withCaptions := req.QueryType == QueryTypeSemantic && req.QueryCaption != ""

	type scoredDoc struct {
		doc   *MockDocument
		score int
	}
	var scored []scoredDoc
	for _, doc := range candidates {
		content := strings.ToLower(doc.Content)
		score := 0
		for _, term := range terms {
			score += strings.Count(content, term)
		}
		if score > 0 {
			scored = append(scored, scoredDoc{doc: doc, score: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	results := make([]*Document, len(scored))
	for i, sd := range scored {
		results[i] = &Document{
			SourcePage: sd.doc.SourcePage,
			Content:    sd.doc.Content,
		}
		if withCaptions {
			results[i].Captions = extractCaptions(sd.doc.Content, terms)
		}
	}
	return results
}

// rankByCosine orders candidates by cosine similarity to the query vector.
func (m *MockIndex) rankByCosine(candidates []*MockDocument, vector []float32, topK int) []*Document {
	type scoredDoc struct {
		doc   *MockDocument
		score float64
	}
	var scored []scoredDoc
	for _, doc := range candidates {
		if len(doc.Embedding) == 0 {
			continue
		}
		scored = append(scored, scoredDoc{doc: doc, score: cosineSimilarity(doc.Embedding, vector)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	results := make([]*Document, len(scored))
	for i, sd := range scored {
		results[i] = &Document{
			SourcePage: sd.doc.SourcePage,
			Content:    sd.doc.Content,
		}
	}
	return results
}

// extractCaptions returns the sentences containing at least one query term.
func extractCaptions(content string, terms []string) []string {
	var captions []string
	for _, sentence := range strings.Split(content, ". ") {
		lower := strings.ToLower(sentence)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				captions = append(captions, strings.TrimSuffix(strings.TrimSpace(sentence), "."))
				break
			}
		}
	}
	return captions
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
