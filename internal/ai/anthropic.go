package ai

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicSystemPrompt = "You classify freelance client requests. Reply with a single JSON object and nothing else."

// AnthropicProvider calls the Messages API through the official SDK.
type AnthropicProvider struct {
	name   string
	model  string
	client sdk.Client
}

// NewAnthropicProvider builds a provider. baseURL is only set in tests.
func NewAnthropicProvider(name, apiKey, model, baseURL string) *AnthropicProvider {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are owned by Service
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{name: name, model: model, client: sdk.NewClient(opts...)}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return p.name }

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := p.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: 1024,
		System:    []sdk.TextBlockParam{{Text: anthropicSystemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return "", &ProviderError{Provider: p.name, Kind: kindForStatus(apiErr.StatusCode), Status: apiErr.StatusCode, Err: err}
		}
		return "", wrapErr(p.name, err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
