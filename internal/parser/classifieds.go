package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	collyfetcher "github.com/JakeFAU/leadpipe/internal/fetcher/colly"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/PuerkitoBio/goquery"
)

var defaultQueries = []string{"создание сайта", "разработка сайта", "интернет магазин", "веб разработка", "лендинг"}

// Words that mark a "looking for" post rather than a service offer.
var lookingMarkers = []string{"ищу", "нужен", "нужна", "требуется", "закажу", "куплю", "looking for", "need"}

// classifiedsParser searches a classifieds board's services section.
// Config: "base_url", "location", "queries", "pages" and the selector keys
// "item_selector", "title_selector", "desc_selector", "price_selector",
// "seller_selector".
type classifiedsParser struct {
	name    string
	baseURL string
	loc     string
	queries []string
	pages   int
	sel     map[string]string
	deps    Deps
}

func newClassifiedsParser(src lead.Source, deps Deps) (Parser, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("classifieds parser needs a page fetcher")
	}
	cfg := func(key, fallback string) string {
		if v := src.Config[key]; v != "" {
			return v
		}
		return fallback
	}
	queries := splitList(src.Config["queries"])
	if len(queries) == 0 {
		queries = defaultQueries
	}
	pages := 2
	if src.Config["pages"] == "1" {
		pages = 1
	}
	return &classifiedsParser{
		name:    src.Name,
		baseURL: strings.TrimRight(cfg("base_url", "https://www.avito.ru"), "/"),
		loc:     cfg("location", "rossiya"),
		queries: queries,
		pages:   pages,
		sel: map[string]string{
			"item":   cfg("item_selector", `div[data-marker="item"]`),
			"title":  cfg("title_selector", `a[data-marker="item-title"]`),
			"desc":   cfg("desc_selector", `div[class*="description"]`),
			"price":  cfg("price_selector", `meta[itemprop="price"]`),
			"seller": cfg("seller_selector", `div[data-marker="item-line"]`),
		},
		deps: deps,
	}, nil
}

func (p *classifiedsParser) Name() string          { return p.name }
func (p *classifiedsParser) Type() lead.SourceType { return lead.SourceClassifieds }

func (p *classifiedsParser) searchURL(query string, page int) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("p", fmt.Sprint(page))
	return fmt.Sprintf("%s/%s/uslugi?%s", p.baseURL, p.loc, v.Encode())
}

func (p *classifiedsParser) Search(ctx context.Context, keywords []string, maxResults int) *Stream {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return NewStream(func(yield Yield) error {
		count := 0
		for _, q := range p.queries {
			for page := 1; page <= p.pages; page++ {
				if count >= maxResults {
					return nil
				}
				pageURL := p.searchURL(q, page)
				if err := p.deps.Limiter.Wait(ctx, pageURL); err != nil {
					return err
				}
				res, err := p.deps.Fetcher.Fetch(ctx, collyfetcher.Request{URL: pageURL})
				if err != nil {
					return fmt.Errorf("query %q page %d: %w", q, page, err)
				}
				doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
				if err != nil {
					return fmt.Errorf("parse %s: %w", pageURL, err)
				}
				var stopped bool
				doc.Find(p.sel["item"]).EachWithBreak(func(_ int, item *goquery.Selection) bool {
					lp, ok := p.parseItem(item, q, keywords)
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
		}
		return nil
	})
}

func (p *classifiedsParser) parseItem(item *goquery.Selection, query string, keywords []string) (lead.ParsedLead, bool) {
	titleEl := item.Find(p.sel["title"]).First()
	title, ok := titleEl.Attr("title")
	if !ok || title == "" {
		title = titleEl.Text()
	}
	title = CleanText(title)
	if title == "" {
		return lead.ParsedLead{}, false
	}
	desc := CleanText(item.Find(p.sel["desc"]).First().Text())
	full := strings.TrimSpace(title + " " + desc)
	if !isLookingFor(full) || !MatchesKeywords(full, keywords) {
		return lead.ParsedLead{}, false
	}
	price, _ := item.Find(p.sel["price"]).First().Attr("content")
	seller := CleanText(item.Find(p.sel["seller"]).First().Text())
	name := "Classifieds user"
	if f := strings.Fields(seller); len(f) > 0 {
		name = f[0]
	}
	href, _ := titleEl.Attr("href")
	lp := lead.ParsedLead{
		Name:             name,
		SourceURL:        absURL(p.baseURL, href),
		OriginalRequest:  full,
		NeedsDescription: title,
		BudgetMentioned:  price,
		FoundAt:          p.deps.Now(),
		Raw:              map[string]string{"query": query, "seller": seller},
	}
	Enrich(&lp, full)
	return lp, true
}

func isLookingFor(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range lookingMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
