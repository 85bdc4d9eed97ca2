// Package parser turns configured sources into streams of parsed leads.
// Each source type maps to exactly one implementation in a static table.
package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	collyfetcher "github.com/JakeFAU/leadpipe/internal/fetcher/colly"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/policy/ratelimit"
	"go.uber.org/zap"
)

// ErrUnknownSourceType is returned for a source whose type has no parser.
var ErrUnknownSourceType = errors.New("unknown source type")

// Parser searches one source.
type Parser interface {
	Name() string
	Type() lead.SourceType
	Search(ctx context.Context, keywords []string, maxResults int) *Stream
}

// PageFetcher fetches one HTML page.
type PageFetcher interface {
	Fetch(ctx context.Context, req collyfetcher.Request) (collyfetcher.Page, error)
}

// Deps are the shared collaborators handed to every parser.
type Deps struct {
	Client    *http.Client
	Limiter   *ratelimit.Limiter
	Fetcher   PageFetcher
	UserAgent string
	Now       func() time.Time
	Logger    *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Client == nil {
		d.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.UserAgent == "" {
		d.UserAgent = "leadpipe-bot/0.1"
	}
	return d
}

// Factory builds a parser for a source.
type Factory func(src lead.Source, deps Deps) (Parser, error)

var registry = map[lead.SourceType]Factory{
	lead.SourceTelegram:    newTelegramParser,
	lead.SourceFreelance:   newFreelanceParser,
	lead.SourceForum:       newForumParser,
	lead.SourceClassifieds: newClassifiedsParser,
}

// New builds the parser registered for src.Type.
func New(src lead.Source, deps Deps) (Parser, error) {
	factory, ok := registry[src.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceType, src.Type)
	}
	p, err := factory(src, deps.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("build %s parser for %q: %w", src.Type, src.Name, err)
	}
	return p, nil
}

// Types lists registered source types.
func Types() []lead.SourceType {
	out := make([]lead.SourceType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// KnownType reports whether t has a registered parser.
func KnownType(t lead.SourceType) bool {
	_, ok := registry[t]
	return ok
}
