package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	youtubeBaseURL  = "https://www.googleapis.com/youtube/v3"
	youtubeWatchURL = "https://www.youtube.com/watch?v="
)

// youtubePublishedAfter maps generic time filters to a lookback window.
var youtubePublishedAfter = map[string]time.Duration{
	"day":   24 * time.Hour,
	"week":  7 * 24 * time.Hour,
	"month": 30 * 24 * time.Hour,
	"year":  365 * 24 * time.Hour,
}

// YouTubeSource queries the YouTube Data API search endpoint.
type YouTubeSource struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

var _ Source = (*YouTubeSource)(nil)

// NewYouTubeSource builds the source; the API key is required by the caller.
func NewYouTubeSource(apiKey string, client *http.Client) *YouTubeSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &YouTubeSource{
		apiKey:  apiKey,
		baseURL: youtubeBaseURL,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		now:     time.Now,
	}
}

// Name identifies the strategy inside the registry.
func (s *YouTubeSource) Name() string {
	return "youtube"
}

// Search performs one video search call.
func (s *YouTubeSource) Search(ctx context.Context, q Query) ([]Result, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("youtube source misconfigured")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("part", "snippet")
	params.Set("q", q.Terms)
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(capResults(q.MaxResults, 50)))
	if window, ok := youtubePublishedAfter[q.TimeFilter]; ok {
		params.Set("publishedAfter", s.now().UTC().Add(-window).Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("youtube error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var payload struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]Result, 0, len(payload.Items))
	for i, item := range payload.Items {
		results = append(results, Result{
			Title:   item.Snippet.Title,
			URL:     youtubeWatchURL + item.ID.VideoID,
			Snippet: truncate(item.Snippet.Description, 300),
			Source:  s.Name(),
			Score:   positionScore(i),
		})
	}

	return results, nil
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
