package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var openAIDefaults = map[string]struct{ baseURL, model string }{
	"groq":       {"https://api.groq.com/openai/v1", "llama-3.1-8b-instant"},
	"openrouter": {"https://openrouter.ai/api/v1", "meta-llama/llama-3.1-8b-instruct:free"},
	"openai":     {"https://api.openai.com/v1", "gpt-4o-mini"},
}

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIProvider builds a provider. Empty baseURL or model fall back to
// the defaults for kind.
func NewOpenAIProvider(name, kind, baseURL, apiKey, model string, client *http.Client) *OpenAIProvider {
	def := openAIDefaults[kind]
	if baseURL == "" {
		baseURL = def.baseURL
	}
	if model == "" {
		model = def.model
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", wrapErr(p.name, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", statusErr(p.name, resp.StatusCode, string(snippet))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{Provider: p.name, Kind: KindBadOutput, Err: fmt.Errorf("decode chat response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return "", &ProviderError{Provider: p.name, Kind: KindBadOutput, Err: fmt.Errorf("empty choices")}
	}
	return out.Choices[0].Message.Content, nil
}
