// Package llm wraps the OpenAI-compatible backends behind the embedding and
// completion gateways the core components depend on.
package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/loom-ai/loom/internal/domain"
)

const (
	// DefaultEmbeddingModel is used when a knowledge base does not name one.
	DefaultEmbeddingModel = string(openai.AdaEmbeddingV2)
	// DefaultCompletionModel is used when a foundation does not name one.
	DefaultCompletionModel = openai.GPT4oMini

	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
)

// ErrEmptyText is returned when text to embed is empty.
var ErrEmptyText = errors.New("text cannot be empty")

// Message is one turn of a completion prompt.
type Message struct {
	Role    domain.Role
	Content string
}

// CompletionRequest carries everything one completion call needs. The
// sampling profile travels with the request; the client holds no per-agent
// state.
type CompletionRequest struct {
	Model    string
	Config   domain.LLMConfig
	Messages []Message
}

// API is the narrow slice of the OpenAI SDK the client uses, extracted so
// tests can substitute a fake backend.
type API interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds client construction parameters.
type Config struct {
	APIKey  string
	BaseURL string
}

// Client is the embedding and completion gateway. Calls are stateless; the
// client is safe for concurrent use and shared across components.
type Client struct {
	api API
}

// NewClient creates a Client against the OpenAI API, or any compatible
// endpoint when BaseURL is set.
func NewClient(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Client{api: openai.NewClientWithConfig(clientCfg)}
}

// NewClientWithAPI creates a Client around an existing API implementation.
func NewClientWithAPI(api API) *Client {
	return &Client{api: api}
}

// NewClientForFoundation creates a Client for a foundation descriptor.
// Only OpenAI-compatible backends have a live client; other providers
// require an explicit compatible BaseURL.
func NewClientForFoundation(f domain.Foundation, cfg Config) (*Client, error) {
	if f.Provider != domain.ProviderOpenAI && cfg.BaseURL == "" {
		return nil, domain.NewDomainError(domain.ErrCodeConfig,
			"provider "+string(f.Provider)+" requires an OpenAI-compatible base URL")
	}
	return NewClient(cfg), nil
}

// Embed generates an embedding for text with the given model and verifies
// the returned vector has the expected dimensionality. A dimension mismatch
// is a configuration error, not a degraded result.
func (c *Client) Embed(ctx context.Context, model, text string, dimensions int) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	var embedding []float32
	err := withRetry(ctx, func() error {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(model),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return errors.New("no embedding data returned")
		}
		embedding = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstream, "embedding backend call failed", err)
	}

	if dimensions > 0 && len(embedding) != dimensions {
		return nil, domain.ErrEmbeddingDimensionMismatch
	}
	return embedding, nil
}

// Complete runs one chat completion applying the request's sampling profile.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultCompletionModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.Config.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Config.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    chatRole(m.Role),
			Content: m.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:            model,
		Messages:         messages,
		Temperature:      req.Config.Temperature,
		MaxTokens:        req.Config.MaxTokens,
		TopP:             req.Config.TopP,
		FrequencyPenalty: req.Config.FrequencyPenalty,
		PresencePenalty:  req.Config.PresencePenalty,
		Stop:             req.Config.StopSequences,
	}

	var content string
	err := withRetry(ctx, func() error {
		resp, err := c.api.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("no completion choices returned")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeUpstream, "completion backend call failed", err)
	}
	return content, nil
}

// withRetry runs fn up to maxAttempts times with doubling backoff. Context
// cancellation stops the retry loop immediately.
func withRetry(ctx context.Context, fn func() error) error {
	backoff := initialBackoff
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func chatRole(r domain.Role) string {
	switch r {
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
