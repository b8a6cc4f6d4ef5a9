package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// CompletionRequest contains parameters for a single completion call.
type CompletionRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
	N           int
}

// CompletionService is the chat completion service interface.
type CompletionService interface {
	// Complete performs one completion call and returns the first choice.
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
}

// CompletionTimeout bounds a single completion call.
const CompletionTimeout = 60 * time.Second

type completionService struct {
	client *openai.Client
	model  string
}

// NewCompletionService creates a new CompletionService.
func NewCompletionService(cfg *ChatConfig) CompletionService {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &completionService{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

func (s *completionService) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, CompletionTimeout)
	defer cancel()

	llmMessages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		llmMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	n := req.N
	if n <= 0 {
		n = 1
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    llmMessages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		N:           n,
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat response")
	}

	return resp.Choices[0].Message.Content, nil
}
