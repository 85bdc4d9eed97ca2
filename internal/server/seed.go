package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/config"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/parser"
)

// defaultSources are created when neither the store nor the config lists any.
var defaultSources = []config.SourceConfig{
	{Name: "Telegram Channels", Type: string(lead.SourceTelegram), Active: true},
	{Name: "Freelance Platforms", Type: string(lead.SourceFreelance), Active: true},
	{Name: "Avito Services", Type: string(lead.SourceClassifieds), Active: true, Params: map[string]string{"base_url": "https://www.avito.ru"}},
	{Name: "Forums", Type: string(lead.SourceForum), Active: true},
}

// seedSources fills an empty store from config, or from the defaults when
// the config lists none. Invalid entries are logged and skipped.
func (a *App) seedSources(ctx context.Context) error {
	existing, err := a.store.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	seeds := a.cfg.Sources
	if len(seeds) == 0 {
		seeds = defaultSources
	}
	saved := 0
	for i, sc := range seeds {
		src, err := a.sourceFromConfig(sc)
		if err != nil {
			a.logger.Error("dropping configured source",
				zap.Int("index", i),
				zap.String("name", sc.Name),
				zap.String("type", sc.Type),
				zap.Error(err))
			continue
		}
		if err := a.store.SaveSource(ctx, src); err != nil {
			return fmt.Errorf("seed source %s: %w", src.Name, err)
		}
		saved++
	}
	a.logger.Info("seeded sources", zap.Int("count", saved))
	return nil
}

func (a *App) sourceFromConfig(sc config.SourceConfig) (lead.Source, error) {
	if err := sc.Validate(); err != nil {
		return lead.Source{}, err
	}
	typ := lead.SourceType(sc.Type)
	if !parser.KnownType(typ) {
		return lead.Source{}, fmt.Errorf("%w: %q", parser.ErrUnknownSourceType, sc.Type)
	}
	id := sc.ID
	if id == "" {
		var err error
		if id, err = a.ids.NewID(); err != nil {
			return lead.Source{}, fmt.Errorf("generate source id: %w", err)
		}
	}
	return lead.Source{
		ID:        id,
		Name:      sc.Name,
		Type:      typ,
		Active:    sc.Active,
		Keywords:  sc.Keywords,
		Config:    sc.Params,
		CreatedAt: a.clock.Now(),
	}, nil
}
