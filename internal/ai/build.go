package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/leadpipe/internal/config"
	"go.uber.org/zap"
)

// FromConfig builds backends in configured order. A provider that fails
// validation or construction is logged and dropped; the rest are kept.
func FromConfig(ctx context.Context, providers []config.ProviderConfig, client *http.Client, logger *zap.Logger) []Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	backends := make([]Backend, 0, len(providers))
	for i, pc := range providers {
		p, err := newProvider(ctx, pc, client)
		if err != nil {
			logger.Error("dropping ai provider",
				zap.Int("index", i),
				zap.String("name", pc.Name),
				zap.String("kind", pc.Kind),
				zap.Error(err))
			continue
		}
		backends = append(backends, NewBackend(p, pc.RatePerMinute, pc.Burst, pc.Timeout))
	}
	return backends
}

func newProvider(ctx context.Context, pc config.ProviderConfig, client *http.Client) (Provider, error) {
	if err := pc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	kind := strings.ToLower(pc.Kind)
	name := pc.Name
	if name == "" {
		name = kind
	}
	switch kind {
	case "gemini":
		return NewGeminiProvider(ctx, name, pc.APIKey, pc.Model, pc.BaseURL)
	case "anthropic":
		return NewAnthropicProvider(name, pc.APIKey, pc.Model, pc.BaseURL), nil
	case "ollama":
		return NewOllamaProvider(name, pc.BaseURL, pc.Model, client), nil
	default:
		return NewOpenAIProvider(name, kind, pc.BaseURL, pc.APIKey, pc.Model, client), nil
	}
}
