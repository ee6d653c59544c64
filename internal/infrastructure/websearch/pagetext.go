package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultMaxBody  = 512 * 1024
	defaultMaxRunes = 2000
)

// PageExtractor fetches a result URL and extracts readable paragraph text,
// used to flesh out thin search snippets before merging.
type PageExtractor struct {
	client   *http.Client
	maxBody  int64
	maxRunes int
}

// NewPageExtractor wires an HTTP client; output is bounded in size.
func NewPageExtractor(client *http.Client) *PageExtractor {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &PageExtractor{
		client:   client,
		maxBody:  defaultMaxBody,
		maxRunes: defaultMaxRunes,
	}
}

// Extract downloads the page and returns its concatenated paragraph text.
func (p *PageExtractor) Extract(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "KnowledgeEvolver/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, p.maxBody))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var parts []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})

	return truncate(strings.Join(parts, "\n"), p.maxRunes), nil
}
