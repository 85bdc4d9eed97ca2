package parser

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/PuerkitoBio/goquery"
)

// platform describes where a freelance listing lives and how to read it.
type platform struct {
	Name          string
	BaseURL       string
	SearchPath    string
	ItemSelector  string
	TitleSelector string
	DescSelector  string
	PriceSelector string
}

var knownPlatforms = map[string]platform{
	"fl.ru": {
		Name:          "fl.ru",
		BaseURL:       "https://www.fl.ru",
		SearchPath:    "/projects/?kind=5&category=37",
		ItemSelector:  "div.b-post",
		TitleSelector: "a.b-post__link",
		DescSelector:  "div.b-post__body",
		PriceSelector: "div.b-post__price",
	},
	"kwork": {
		Name:          "kwork",
		BaseURL:       "https://kwork.ru",
		SearchPath:    "/projects?c=41",
		ItemSelector:  "div.wants-card",
		TitleSelector: "a.wants-card__header-title",
		DescSelector:  "div.wants-card__description",
		PriceSelector: "div.wants-card__header-price",
	},
	"habr_freelance": {
		Name:          "habr_freelance",
		BaseURL:       "https://freelance.habr.com",
		SearchPath:    "/tasks?categories=development_all_inclusive,development_sites",
		ItemSelector:  "article.task",
		TitleSelector: "a.task__title",
		DescSelector:  "div.task__description",
		PriceSelector: "span.task__price",
	},
}

const maxItemsPerPlatform = 30

// freelanceParser reads project listings from freelance marketplaces.
// Config: "platforms" (comma separated known names), or "base_url" with
// optional "search_path" and "*_selector" keys for a custom listing.
type freelanceParser struct {
	name      string
	platforms []platform
	deps      Deps
}

func newFreelanceParser(src lead.Source, deps Deps) (Parser, error) {
	p := &freelanceParser{name: src.Name, deps: deps}
	if base := src.Config["base_url"]; base != "" {
		p.platforms = []platform{customPlatform(src)}
		return p, nil
	}
	names := splitList(src.Config["platforms"])
	if len(names) == 0 {
		for n := range knownPlatforms {
			names = append(names, n)
		}
		sort.Strings(names)
	}
	for _, n := range names {
		pl, ok := knownPlatforms[n]
		if !ok {
			return nil, fmt.Errorf("unknown freelance platform %q", n)
		}
		p.platforms = append(p.platforms, pl)
	}
	return p, nil
}

func customPlatform(src lead.Source) platform {
	def := knownPlatforms["fl.ru"]
	pick := func(key, fallback string) string {
		if v := src.Config[key]; v != "" {
			return v
		}
		return fallback
	}
	return platform{
		Name:          pick("platform", src.Name),
		BaseURL:       strings.TrimRight(src.Config["base_url"], "/"),
		SearchPath:    pick("search_path", "/"),
		ItemSelector:  pick("item_selector", def.ItemSelector),
		TitleSelector: pick("title_selector", def.TitleSelector),
		DescSelector:  pick("desc_selector", def.DescSelector),
		PriceSelector: pick("price_selector", def.PriceSelector),
	}
}

func (p *freelanceParser) Name() string          { return p.name }
func (p *freelanceParser) Type() lead.SourceType { return lead.SourceFreelance }

func (p *freelanceParser) Search(ctx context.Context, keywords []string, maxResults int) *Stream {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return NewStream(func(yield Yield) error {
		count := 0
		for _, pl := range p.platforms {
			if count >= maxResults {
				return nil
			}
			doc, err := getDocument(ctx, p.deps, pl.BaseURL+pl.SearchPath)
			if err != nil {
				return fmt.Errorf("platform %s: %w", pl.Name, err)
			}
			var stopped bool
			doc.Find(pl.ItemSelector).EachWithBreak(func(i int, item *goquery.Selection) bool {
				if i >= maxItemsPerPlatform {
					return false
				}
				lp, ok := p.parseItem(item, pl, keywords)
				if !ok {
					return true
				}
				if !yield(lp) {
					stopped = true
					return false
				}
				count++
				return count < maxResults
			})
			if stopped {
				return nil
			}
		}
		return nil
	})
}

func (p *freelanceParser) parseItem(item *goquery.Selection, pl platform, keywords []string) (lead.ParsedLead, bool) {
	titleEl := item.Find(pl.TitleSelector).First()
	title := CleanText(titleEl.Text())
	if title == "" {
		return lead.ParsedLead{}, false
	}
	desc := CleanText(item.Find(pl.DescSelector).First().Text())
	price := CleanText(item.Find(pl.PriceSelector).First().Text())
	full := strings.TrimSpace(title + " " + desc)
	if !MatchesKeywords(full, keywords) {
		return lead.ParsedLead{}, false
	}
	href, _ := titleEl.Attr("href")
	needs := desc
	if needs == "" {
		needs = title
	}
	lp := lead.ParsedLead{
		Name:             "Client from " + pl.Name,
		SourceURL:        absURL(pl.BaseURL, href),
		OriginalRequest:  full,
		NeedsDescription: Truncate(needs, 500),
		BudgetMentioned:  price,
		FoundAt:          p.deps.Now(),
		Raw:              map[string]string{"platform": pl.Name, "title": title},
	}
	Enrich(&lp, full)
	return lp, true
}
