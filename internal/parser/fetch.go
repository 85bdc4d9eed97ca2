package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// getDocument waits on the per-host limiter, fetches rawURL and parses it.
func getDocument(ctx context.Context, deps Deps, rawURL string) (*goquery.Document, error) {
	body, err := get(ctx, deps, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return doc, nil
}

func get(ctx context.Context, deps Deps, rawURL string) (io.ReadCloser, error) {
	if err := deps.Limiter.Wait(ctx, rawURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", deps.UserAgent)
	req.Header.Set("Accept-Language", "ru,en;q=0.8")

	resp, err := deps.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close() //nolint:errcheck
		return nil, fmt.Errorf("get %s: status %d", rawURL, resp.StatusCode)
	}
	return resp.Body, nil
}

// absURL resolves href against base.
func absURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
}

// splitList splits a comma separated config value.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
