package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// rerankTimeout caps a single rerank call.
const rerankTimeout = 10 * time.Second

// RerankResult is one document's position in the reranked order.
type RerankResult struct {
	Index int     // position in the input slice
	Score float32 // relevance assigned by the model
}

// RerankerService reorders candidate documents by relevance to a query.
type RerankerService interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)

	// IsEnabled reports whether a reranking model is configured.
	IsEnabled() bool
}

type rerankerService struct {
	cfg    RerankerConfig
	client *http.Client
}

// NewRerankerService creates a RerankerService. When the config disables
// reranking, Rerank passes documents through in their input order.
func NewRerankerService(cfg *RerankerConfig) RerankerService {
	return &rerankerService{
		cfg:    *cfg,
		client: &http.Client{Timeout: rerankTimeout},
	}
}

func (s *rerankerService) IsEnabled() bool {
	return s.cfg.Enabled
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float32 `json:"relevance_score"`
	} `json:"results"`
}

func (s *rerankerService) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	if !s.cfg.Enabled {
		return passthrough(len(documents), topN), nil
	}

	payload, err := json.Marshal(&rerankRequest{
		Model:     s.cfg.Model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, rerankTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v1/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rerank status %d: %s", resp.StatusCode, string(detail))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	results := make([]RerankResult, len(parsed.Results))
	for i, r := range parsed.Results {
		results[i] = RerankResult{Index: r.Index, Score: r.Score}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// passthrough yields the input order, trimmed to topN. Scores stay zero
// since no model judged the documents.
func passthrough(count, topN int) []RerankResult {
	if topN > 0 && topN < count {
		count = topN
	}
	results := make([]RerankResult, count)
	for i := range results {
		results[i] = RerankResult{Index: i}
	}
	return results
}
