package ai

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-3.5-turbo"

// OpenAIConfig configures the chat-completions provider.
type OpenAIConfig struct {
	APIKey  string        // falls back to OPENAI_API_KEY
	BaseURL string        // optional, for OpenAI-compatible endpoints
	Model   string        // default gpt-3.5-turbo
	Timeout time.Duration // per-request timeout, 0 = none
}

// OpenAIGateway calls an OpenAI-compatible chat completions endpoint.
type OpenAIGateway struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	hasKey  bool
}

// NewOpenAIGateway builds the provider. A missing key is not an error here;
// it surfaces on the first call.
func NewOpenAIGateway(cfg OpenAIConfig) (*OpenAIGateway, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGateway{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: cfg.Timeout,
		hasKey:  apiKey != "",
	}, nil
}

// Model returns the configured model name.
func (g *OpenAIGateway) Model() string {
	return g.model
}

// Complete implements Gateway
func (g *OpenAIGateway) Complete(ctx context.Context, req Request) (*Response, error) {
	if !g.hasKey {
		return nil, wrapErr("openai", req, ErrMissingCredential)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, wrapErr("openai", req, err)
	}
	if len(resp.Choices) == 0 {
		return nil, wrapErr("openai", req, errors.New("no choices in response"))
	}

	return &Response{
		Text:         strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:        resp.Model,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}
