package ai

import (
	"errors"

	"github.com/hrygo/ragchat/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Chat      ChatConfig
	Embedding EmbeddingConfig
	Reranker  RerankerConfig
}

// ChatConfig represents chat completion configuration.
type ChatConfig struct {
	Model      string // gpt-4o-mini
	APIKey     string
	BaseURL    string
	TokenLimit int // context window size of the model
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Model      string // text-embedding-3-small
	Dimensions int    // 1536
	APIKey     string
	BaseURL    string
}

// RerankerConfig represents reranker configuration.
type RerankerConfig struct {
	Enabled bool
	Model   string // BAAI/bge-reranker-v2-m3
	APIKey  string
	BaseURL string
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	return &Config{
		Chat: ChatConfig{
			Model:      p.AIChatModel,
			APIKey:     p.AIAPIKey,
			BaseURL:    p.AIBaseURL,
			TokenLimit: p.AIChatTokenLimit,
		},
		Embedding: EmbeddingConfig{
			Model:      p.AIEmbeddingModel,
			Dimensions: p.AIEmbeddingDimensions,
			APIKey:     p.AIAPIKey,
			BaseURL:    p.AIBaseURL,
		},
		Reranker: RerankerConfig{
			Enabled: p.AIRerankEnabled,
			Model:   p.AIRerankModel,
			APIKey:  p.AIRerankAPIKey,
			BaseURL: p.AIRerankBaseURL,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Chat.APIKey == "" {
		return errors.New("chat API key is required")
	}
	if c.Chat.Model == "" {
		return errors.New("chat model is required")
	}
	if c.Chat.TokenLimit <= 0 {
		return errors.New("chat token limit must be positive")
	}
	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}
	if c.Reranker.Enabled && c.Reranker.APIKey == "" {
		return errors.New("reranker API key is required when reranking is enabled")
	}
	return nil
}
