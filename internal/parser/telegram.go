package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/PuerkitoBio/goquery"
)

var defaultChannels = []string{"freelancetavern", "web_freelance", "it_freelance", "freelance_ru", "devjobs"}

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)меня зовут\s+([А-Яа-яЁёA-Za-z]+)`),
	regexp.MustCompile(`(?i)обращаться к\s+([А-Яа-яЁёA-Za-z]+)`),
	regexp.MustCompile(`(?i)my name is\s+([A-Za-z]+)`),
}

// telegramParser reads public channels through the t.me/s web preview.
// Config: "channels" (comma separated), "base_url".
type telegramParser struct {
	name     string
	baseURL  string
	channels []string
	deps     Deps
}

func newTelegramParser(src lead.Source, deps Deps) (Parser, error) {
	channels := splitList(src.Config["channels"])
	if len(channels) == 0 {
		channels = defaultChannels
	}
	base := src.Config["base_url"]
	if base == "" {
		base = "https://t.me"
	}
	return &telegramParser{name: src.Name, baseURL: strings.TrimRight(base, "/"), channels: channels, deps: deps}, nil
}

func (p *telegramParser) Name() string          { return p.name }
func (p *telegramParser) Type() lead.SourceType { return lead.SourceTelegram }

func (p *telegramParser) Search(ctx context.Context, keywords []string, maxResults int) *Stream {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return NewStream(func(yield Yield) error {
		count := 0
		for _, channel := range p.channels {
			if count >= maxResults {
				return nil
			}
			pageURL := fmt.Sprintf("%s/s/%s", p.baseURL, strings.TrimPrefix(channel, "@"))
			doc, err := getDocument(ctx, p.deps, pageURL)
			if err != nil {
				return fmt.Errorf("channel %s: %w", channel, err)
			}
			var stopped bool
			doc.Find(".tgme_widget_message_wrap").EachWithBreak(func(_ int, w *goquery.Selection) bool {
				pl, ok := p.parseMessage(w, channel, pageURL, keywords)
				if !ok {
					return true
				}
				if !yield(pl) {
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

func (p *telegramParser) parseMessage(w *goquery.Selection, channel, pageURL string, keywords []string) (lead.ParsedLead, bool) {
	text := CleanText(w.Find(".tgme_widget_message_text").First().Text())
	if text == "" || !MatchesKeywords(text, keywords) {
		return lead.ParsedLead{}, false
	}
	link, ok := w.Find("a.tgme_widget_message_date").Attr("href")
	if !ok || link == "" {
		link = pageURL
	}
	found := p.deps.Now()
	if dt, ok := w.Find("time[datetime]").Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, dt); err == nil {
			found = t.UTC()
		}
	}
	author := CleanText(w.Find(".tgme_widget_message_owner_name").First().Text())

	pl := lead.ParsedLead{
		Name:      guessName(text, author),
		SourceURL: link,
		FoundAt:   found,
		Raw:       map[string]string{"channel": channel, "author": author},
	}
	// The channel is not the requester, so it never stands in for a handle.
	Enrich(&pl, text)
	return pl, true
}

func guessName(text, fallback string) string {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	if fallback != "" {
		return fallback
	}
	return lead.UnknownName
}
