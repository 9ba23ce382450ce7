package ai

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is the model used when the anthropic provider has none configured.
const DefaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicConfig configures the Messages API provider.
type AnthropicConfig struct {
	APIKey  string // falls back to ANTHROPIC_API_KEY
	Model   string
	Timeout time.Duration
}

// AnthropicGateway calls the Anthropic Messages API.
type AnthropicGateway struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
	hasKey  bool
}

// NewAnthropicGateway builds the provider. Like the OpenAI provider it does
// not reject a missing key up front.
func NewAnthropicGateway(cfg AnthropicConfig) (*AnthropicGateway, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicGateway{
		client:  &client,
		model:   model,
		timeout: cfg.Timeout,
		hasKey:  apiKey != "",
	}, nil
}

// Model returns the configured model name.
func (g *AnthropicGateway) Model() string {
	return g.model
}

// Complete implements Gateway
func (g *AnthropicGateway) Complete(ctx context.Context, req Request) (*Response, error) {
	if !g.hasKey {
		return nil, wrapErr("anthropic", req, ErrMissingCredential)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	response, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapErr("anthropic", req, err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Response{
		Text:         strings.TrimSpace(text.String()),
		Model:        string(response.Model),
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
	}, nil
}
