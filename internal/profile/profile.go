package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where ragchat stores conversations
	DSN string
	// Driver is the conversation store driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// LLM configuration
	AIAPIKey         string // RAGCHAT_AI_API_KEY
	AIBaseURL        string // RAGCHAT_AI_BASE_URL (default: https://api.openai.com/v1)
	AIChatModel      string // RAGCHAT_AI_CHAT_MODEL (default: gpt-4o-mini)
	AIChatTokenLimit int    // RAGCHAT_AI_CHAT_TOKEN_LIMIT (default: 4096)

	// Embedding configuration
	AIEmbeddingModel      string // RAGCHAT_AI_EMBEDDING_MODEL (default: text-embedding-3-small)
	AIEmbeddingDimensions int    // RAGCHAT_AI_EMBEDDING_DIMENSIONS (default: 1536)

	// Reranker configuration
	AIRerankEnabled bool   // RAGCHAT_AI_RERANK_ENABLED
	AIRerankModel   string // RAGCHAT_AI_RERANK_MODEL (default: BAAI/bge-reranker-v2-m3)
	AIRerankAPIKey  string // RAGCHAT_AI_RERANK_API_KEY
	AIRerankBaseURL string // RAGCHAT_AI_RERANK_BASE_URL

	// Search index configuration
	SearchDriver          string // RAGCHAT_SEARCH_DRIVER (postgres or mock, default: mock in dev)
	SearchDSN             string // RAGCHAT_SEARCH_DSN
	SearchSourcePageField string // RAGCHAT_SEARCH_SOURCEPAGE_FIELD (default: sourcepage)
	SearchContentField    string // RAGCHAT_SEARCH_CONTENT_FIELD (default: content)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIConfigured returns true if the completion backend has credentials.
func (p *Profile) IsAIConfigured() bool {
	return p.AIAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from RAGCHAT_* environment variables.
// Most fields fall back to built-in defaults when the variable is
// absent; only the API-key, rerank-endpoint, and search-DSN fields keep
// a value already set on the profile.
func (p *Profile) FromEnv() {
	getBoolEnv := func(key string) bool {
		return os.Getenv(key) == "true"
	}
	getIntEnv := func(key string, defaultValue int) int {
		val := os.Getenv(key)
		if val == "" {
			return defaultValue
		}
		var n int
		if _, err := fmt.Sscanf(val, "%d", &n); err != nil {
			return defaultValue
		}
		return n
	}

	p.AIAPIKey = getEnvOrDefault("RAGCHAT_AI_API_KEY", p.AIAPIKey)
	p.AIBaseURL = getEnvOrDefault("RAGCHAT_AI_BASE_URL", "https://api.openai.com/v1")
	p.AIChatModel = getEnvOrDefault("RAGCHAT_AI_CHAT_MODEL", "gpt-4o-mini")
	p.AIChatTokenLimit = getIntEnv("RAGCHAT_AI_CHAT_TOKEN_LIMIT", 4096)

	p.AIEmbeddingModel = getEnvOrDefault("RAGCHAT_AI_EMBEDDING_MODEL", "text-embedding-3-small")
	p.AIEmbeddingDimensions = getIntEnv("RAGCHAT_AI_EMBEDDING_DIMENSIONS", 1536)

	p.AIRerankEnabled = getBoolEnv("RAGCHAT_AI_RERANK_ENABLED")
	p.AIRerankModel = getEnvOrDefault("RAGCHAT_AI_RERANK_MODEL", "BAAI/bge-reranker-v2-m3")
	p.AIRerankAPIKey = getEnvOrDefault("RAGCHAT_AI_RERANK_API_KEY", p.AIRerankAPIKey)
	p.AIRerankBaseURL = getEnvOrDefault("RAGCHAT_AI_RERANK_BASE_URL", p.AIRerankBaseURL)

	defaultSearchDriver := "postgres"
	if p.IsDev() {
		defaultSearchDriver = "mock"
	}
	p.SearchDriver = getEnvOrDefault("RAGCHAT_SEARCH_DRIVER", defaultSearchDriver)
	p.SearchDSN = getEnvOrDefault("RAGCHAT_SEARCH_DSN", p.SearchDSN)
	p.SearchSourcePageField = getEnvOrDefault("RAGCHAT_SEARCH_SOURCEPAGE_FIELD", "sourcepage")
	p.SearchContentField = getEnvOrDefault("RAGCHAT_SEARCH_CONTENT_FIELD", "content")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/ragchat"
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("ragchat_%s.db", p.Mode)
		p.DSN = filepath.Join(p.Data, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for postgres driver")
	}

	if p.SearchDriver == "postgres" && p.SearchDSN == "" {
		// Fall back to the conversation store database when it is postgres too.
		if p.Driver == "postgres" {
			p.SearchDSN = p.DSN
		} else {
			return errors.New("search dsn is required for postgres search driver")
		}
	}

	return nil
}
