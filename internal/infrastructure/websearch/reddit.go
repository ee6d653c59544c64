package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const redditBaseURL = "https://www.reddit.com"

// RedditSource queries Reddit's public search JSON endpoint; no API key needed.
type RedditSource struct {
	userAgent string
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
}

var _ Source = (*RedditSource)(nil)

// NewRedditSource builds the source with the configured user agent.
func NewRedditSource(userAgent string, client *http.Client) *RedditSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &RedditSource{
		userAgent: userAgent,
		baseURL:   redditBaseURL,
		client:    client,
		limiter:   rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// Name identifies the strategy inside the registry.
func (s *RedditSource) Name() string {
	return "reddit"
}

// Search performs one search.json call.
func (s *RedditSource) Search(ctx context.Context, q Query) ([]Result, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("q", q.Terms)
	params.Set("limit", strconv.Itoa(capResults(q.MaxResults, 25)))
	params.Set("sort", "relevance")
	params.Set("t", redditTimeFilter(q.TimeFilter))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit error: %s", resp.Status)
	}

	var payload struct {
		Data struct {
			Children []struct {
				Data struct {
					Title     string  `json:"title"`
					Permalink string  `json:"permalink"`
					SelfText  string  `json:"selftext"`
					Score     float64 `json:"score"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]Result, 0, len(payload.Data.Children))
	for _, child := range payload.Data.Children {
		post := child.Data
		snippet := truncate(post.SelfText, 300)
		if snippet == "" {
			snippet = post.Title
		}

		results = append(results, Result{
			Title:   post.Title,
			URL:     redditBaseURL + post.Permalink,
			Snippet: snippet,
			Source:  s.Name(),
			Score:   normalizeRedditScore(post.Score),
		})
	}

	return results, nil
}

func redditTimeFilter(filter string) string {
	switch filter {
	case "day", "week", "month", "year":
		return filter
	default:
		return "all"
	}
}

// normalizeRedditScore squeezes post karma into (0,1].
func normalizeRedditScore(score float64) float64 {
	if score <= 0 {
		return 0.1
	}
	normalized := score / 100
	if normalized > 1 {
		return 1
	}
	return normalized
}
