package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	collyfetcher "github.com/JakeFAU/leadpipe/internal/fetcher/colly"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testDeps(srv *httptest.Server) Deps {
	return Deps{Client: srv.Client(), Now: func() time.Time { return fixedNow }}
}

const telegramPage = `<html><body>
<div class="tgme_widget_message_wrap">
  <a class="tgme_widget_message_owner_name">Freelance Tavern</a>
  <div class="tgme_widget_message_text">Нужен сайт для кофейни, срочно! Меня зовут Анна, пишите anna@coffee.example или @anna_coffee. Бюджет 40000 руб</div>
  <a class="tgme_widget_message_date" href="https://t.me/web_freelance/101"><time datetime="2025-02-27T10:00:00+00:00">Feb 27</time></a>
</div>
<div class="tgme_widget_message_wrap">
  <div class="tgme_widget_message_text">Продаю диван</div>
</div>
<div class="tgme_widget_message_wrap">
  <div class="tgme_widget_message_text">Need a website for my bakery next week, https://bakery.example</div>
  <a class="tgme_widget_message_date" href="https://t.me/web_freelance/103"></a>
</div>
</body></html>`

func TestTelegramParserSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/s/web_freelance", r.URL.Path)
		_, _ = w.Write([]byte(telegramPage))
	}))
	defer srv.Close()

	p, err := New(lead.Source{
		Name:   "tg",
		Type:   lead.SourceTelegram,
		Config: map[string]string{"channels": "web_freelance", "base_url": srv.URL},
	}, testDeps(srv))
	require.NoError(t, err)
	require.Equal(t, lead.SourceTelegram, p.Type())

	items, err := Collect(p.Search(context.Background(), nil, 10))
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	require.Equal(t, "Анна", first.Name)
	require.Equal(t, "anna@coffee.example", first.Email)
	require.Equal(t, "@anna_coffee", first.Handle)
	require.Equal(t, lead.UrgencyHigh, first.Urgency)
	require.Equal(t, "https://t.me/web_freelance/101", first.SourceURL)
	require.Equal(t, time.Date(2025, 2, 27, 10, 0, 0, 0, time.UTC), first.FoundAt)
	require.Contains(t, first.BudgetMentioned, "40000")

	second := items[1]
	require.Empty(t, second.Handle, "channel name must not stand in for the requester")
	require.Equal(t, "https://bakery.example", second.Website)
	require.Equal(t, fixedNow, second.FoundAt)
	require.Equal(t, lead.UrgencyLow, second.Urgency)
}

func TestTelegramParserHonorsMaxResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(telegramPage))
	}))
	defer srv.Close()

	p, err := New(lead.Source{Type: lead.SourceTelegram, Config: map[string]string{"channels": "a_chan,b_chan", "base_url": srv.URL}}, testDeps(srv))
	require.NoError(t, err)
	items, err := Collect(p.Search(context.Background(), nil, 3))
	require.NoError(t, err)
	require.Len(t, items, 3)
}

func TestTelegramParserPartialFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "broken") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(telegramPage))
	}))
	defer srv.Close()

	p, err := New(lead.Source{Type: lead.SourceTelegram, Config: map[string]string{"channels": "good,broken,never", "base_url": srv.URL}}, testDeps(srv))
	require.NoError(t, err)
	items, err := Collect(p.Search(context.Background(), nil, 50))
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
	require.Len(t, items, 2, "items from the first channel survive")
}

const freelancePage = `<html><body>
<div class="b-post">
  <a class="b-post__link" href="/projects/555/lending.html">Нужен лендинг для школы английского</a>
  <div class="b-post__body">Сделать сайт-лендинг, курсы для детей. Телефон +7 912 345-67-89</div>
  <div class="b-post__price">25 000 руб</div>
</div>
<div class="b-post">
  <a class="b-post__link" href="/projects/556/logo.html">Логотип для пекарни</a>
  <div class="b-post__body">Нарисовать логотип</div>
</div>
</body></html>`

func TestFreelanceParserCustomPlatform(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/projects/", r.URL.Path)
		_, _ = w.Write([]byte(freelancePage))
	}))
	defer srv.Close()

	p, err := New(lead.Source{
		Name: "fl",
		Type: lead.SourceFreelance,
		Config: map[string]string{
			"base_url":    srv.URL,
			"search_path": "/projects/",
			"platform":    "fl.ru",
		},
	}, testDeps(srv))
	require.NoError(t, err)

	items, err := Collect(p.Search(context.Background(), nil, 10))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Client from fl.ru", items[0].Name)
	require.Equal(t, srv.URL+"/projects/555/lending.html", items[0].SourceURL)
	require.Equal(t, "25 000 руб", items[0].BudgetMentioned)
	require.Equal(t, "+79123456789", items[0].Phone)
}

func TestFreelanceParserRejectsUnknownPlatform(t *testing.T) {
	t.Parallel()

	_, err := New(lead.Source{Type: lead.SourceFreelance, Config: map[string]string{"platforms": "upwork"}}, Deps{})
	require.Error(t, err)
}

const forumFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Web development</title>
<item>
  <title>Ищу веб-разработчика для интернет-магазина</title>
  <link>https://forum.example/thread/1</link>
  <description><![CDATA[<p>Нужен интернет-магазин одежды, бюджет 150 тыс. Пишите <b>shop@clothes.example</b></p>]]></description>
  <author>owner@clothes.example (Pavel)</author>
  <pubDate>Wed, 26 Feb 2025 09:30:00 GMT</pubDate>
</item>
<item>
  <title>Обсуждение CSS</title>
  <link>https://forum.example/thread/2</link>
  <description>flexbox vs grid</description>
</item>
</channel></rss>`

func TestForumParserReadsFeed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(forumFeed))
	}))
	defer srv.Close()

	p, err := New(lead.Source{Name: "forum", Type: lead.SourceForum, Config: map[string]string{"feeds": srv.URL + "/rss"}}, testDeps(srv))
	require.NoError(t, err)

	items, err := Collect(p.Search(context.Background(), nil, 10))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "https://forum.example/thread/1", items[0].SourceURL)
	require.Equal(t, "shop@clothes.example", items[0].Email)
	require.Equal(t, time.Date(2025, 2, 26, 9, 30, 0, 0, time.UTC), items[0].FoundAt)
	require.Equal(t, "Web development", items[0].Raw["forum"])
	require.NotContains(t, items[0].OriginalRequest, "<p>")
}

func TestForumParserBadFeedFailsStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not a feed"))
	}))
	defer srv.Close()

	p, err := New(lead.Source{Type: lead.SourceForum, Config: map[string]string{"feeds": srv.URL}}, testDeps(srv))
	require.NoError(t, err)
	_, err = Collect(p.Search(context.Background(), nil, 10))
	require.Error(t, err)
}

type fakeFetcher struct {
	pages map[string]string
	urls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req collyfetcher.Request) (collyfetcher.Page, error) {
	f.urls = append(f.urls, req.URL)
	for key, body := range f.pages {
		if strings.Contains(req.URL, key) {
			return collyfetcher.Page{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
		}
	}
	return collyfetcher.Page{}, errors.New("status 404: Not Found")
}

const classifiedsPage = `<html><body>
<div data-marker="item">
  <a data-marker="item-title" href="/moskva/uslugi/nuzhen_sayt_1" title="Нужен сайт для автосервиса"></a>
  <div class="iva-item-description">Ищу разработчика, сайт-визитка, в ближайшее время</div>
  <meta itemprop="price" content="30000">
  <div data-marker="item-line">Сергей Автосервис</div>
</div>
<div data-marker="item">
  <a data-marker="item-title" href="/moskva/uslugi/sozdanie_saytov_2" title="Создание сайтов под ключ"></a>
  <div class="iva-item-description">Разработка сайта недорого, портфолио</div>
</div>
</body></html>`

func TestClassifiedsParserUsesFetcher(t *testing.T) {
	t.Parallel()

	ff := &fakeFetcher{pages: map[string]string{"p=1": classifiedsPage}}
	p, err := New(lead.Source{
		Name:   "board",
		Type:   lead.SourceClassifieds,
		Config: map[string]string{"base_url": "https://board.example", "location": "moskva", "queries": "сайт"},
	}, Deps{Fetcher: ff, Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)

	s := p.Search(context.Background(), []string{"сайт"}, 10)
	var items []lead.ParsedLead
	for s.Next() {
		items = append(items, s.Item())
	}
	s.Close()

	require.Error(t, s.Err(), "second page 404s and ends the stream")
	require.Len(t, items, 1, "service offers are skipped")
	require.Equal(t, "Сергей", items[0].Name)
	require.Equal(t, "30000", items[0].BudgetMentioned)
	require.Equal(t, "https://board.example/moskva/uslugi/nuzhen_sayt_1", items[0].SourceURL)
	require.Equal(t, lead.UrgencyMedium, items[0].Urgency)
	require.Equal(t, fmt.Sprintf("https://board.example/moskva/uslugi?p=1&q=%s", "%D1%81%D0%B0%D0%B9%D1%82"), ff.urls[0])
}

func TestClassifiedsParserNeedsFetcher(t *testing.T) {
	t.Parallel()

	_, err := New(lead.Source{Type: lead.SourceClassifieds}, Deps{})
	require.Error(t, err)
}

func TestRegistryUnknownType(t *testing.T) {
	t.Parallel()

	_, err := New(lead.Source{Type: "carrier_pigeon"}, Deps{})
	require.ErrorIs(t, err, ErrUnknownSourceType)
	require.Len(t, Types(), 4)
	require.True(t, KnownType(lead.SourceForum))
}
