package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

var defaultFeeds = []string{
	"https://searchengines.guru/external.php?type=RSS2&forumids=29",
}

// forumParser reads forum sections through their RSS or Atom feeds.
// Config: "feeds" (comma separated feed URLs).
type forumParser struct {
	name  string
	feeds []string
	deps  Deps
}

func newForumParser(src lead.Source, deps Deps) (Parser, error) {
	feeds := splitList(src.Config["feeds"])
	if len(feeds) == 0 {
		feeds = defaultFeeds
	}
	return &forumParser{name: src.Name, feeds: feeds, deps: deps}, nil
}

func (p *forumParser) Name() string          { return p.name }
func (p *forumParser) Type() lead.SourceType { return lead.SourceForum }

func (p *forumParser) Search(ctx context.Context, keywords []string, maxResults int) *Stream {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return NewStream(func(yield Yield) error {
		fp := gofeed.NewParser()
		count := 0
		for _, feedURL := range p.feeds {
			if count >= maxResults {
				return nil
			}
			feed, err := p.fetchFeed(ctx, fp, feedURL)
			if err != nil {
				return err
			}
			for _, item := range feed.Items {
				lp, ok := p.parseItem(item, feed.Title, keywords)
				if !ok {
					continue
				}
				if !yield(lp) {
					return nil
				}
				count++
				if count >= maxResults {
					return nil
				}
			}
		}
		return nil
	})
}

func (p *forumParser) fetchFeed(ctx context.Context, fp *gofeed.Parser, feedURL string) (*gofeed.Feed, error) {
	body, err := get(ctx, p.deps, feedURL)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feedURL, err)
	}
	defer body.Close() //nolint:errcheck
	feed, err := fp.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	return feed, nil
}

func (p *forumParser) parseItem(item *gofeed.Item, forum string, keywords []string) (lead.ParsedLead, bool) {
	title := CleanText(item.Title)
	desc := CleanText(stripHTML(item.Description))
	if desc == "" {
		desc = CleanText(stripHTML(item.Content))
	}
	full := strings.TrimSpace(title + " " + desc)
	if full == "" || !MatchesKeywords(full, keywords) {
		return lead.ParsedLead{}, false
	}
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	author := ""
	if item.Author != nil {
		author = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		author = item.Authors[0].Name
	}
	found := p.deps.Now()
	if item.PublishedParsed != nil {
		found = item.PublishedParsed.UTC()
	}
	lp := lead.ParsedLead{
		Name:      guessName(full, author),
		SourceURL: link,
		FoundAt:   found,
		Raw:       map[string]string{"forum": forum, "title": title},
	}
	Enrich(&lp, full)
	return lp, true
}

// stripHTML returns the text content of an HTML fragment.
func stripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return doc.Text()
}
