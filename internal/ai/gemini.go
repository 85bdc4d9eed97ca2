package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	name   string
	model  string
	client *genai.Client
}

// NewGeminiProvider builds a provider. baseURL is only set in tests.
func NewGeminiProvider(ctx context.Context, name, apiKey, model, baseURL string) (*GeminiProvider, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{name: name, model: model, client: client}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return p.name }

// Complete implements Provider.
func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &ProviderError{Provider: p.name, Kind: kindForStatus(apiErr.Code), Status: apiErr.Code, Err: err}
		}
		return "", wrapErr(p.name, err)
	}
	text := resp.Text()
	if text == "" {
		return "", &ProviderError{Provider: p.name, Kind: KindBadOutput, Err: errors.New("empty candidate")}
	}
	return text, nil
}
