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

// OllamaProvider calls a local Ollama server's generate endpoint.
type OllamaProvider struct {
	name    string
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaProvider builds a provider for a local model.
func NewOllamaProvider(name, baseURL, model string, client *http.Client) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.1"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaProvider{name: name, baseURL: strings.TrimRight(baseURL, "/"), model: model, client: client}
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return p.name }

// Complete implements Provider.
func (p *OllamaProvider) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":  p.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
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
	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{Provider: p.name, Kind: KindBadOutput, Err: fmt.Errorf("decode generate response: %w", err)}
	}
	return out.Response, nil
}
