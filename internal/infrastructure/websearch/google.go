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

const googleBaseURL = "https://www.googleapis.com/customsearch/v1"

// googleDateRestrict maps generic time filters to the API's dateRestrict values.
var googleDateRestrict = map[string]string{
	"day":   "d1",
	"week":  "w1",
	"month": "m1",
	"year":  "y1",
}

// GoogleSource queries the Google Custom Search JSON API.
type GoogleSource struct {
	apiKey   string
	engineID string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
}

var _ Source = (*GoogleSource)(nil)

// NewGoogleSource builds the source; credentials are required by the caller.
func NewGoogleSource(apiKey, engineID string, client *http.Client) *GoogleSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &GoogleSource{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  googleBaseURL,
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Name identifies the strategy inside the registry.
func (s *GoogleSource) Name() string {
	return "google"
}

// Search performs one Custom Search call.
func (s *GoogleSource) Search(ctx context.Context, q Query) ([]Result, error) {
	if s.apiKey == "" || s.engineID == "" {
		return nil, fmt.Errorf("google source misconfigured")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("cx", s.engineID)
	params.Set("q", q.Terms)
	params.Set("num", strconv.Itoa(capResults(q.MaxResults, 10)))
	if restrict, ok := googleDateRestrict[q.TimeFilter]; ok {
		params.Set("dateRestrict", restrict)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("google error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var payload struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]Result, 0, len(payload.Items))
	for i, item := range payload.Items {
		results = append(results, Result{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
			Source:  s.Name(),
			Score:   positionScore(i),
		})
	}

	return results, nil
}

// positionScore ranks API results by their position when the API exposes no
// native relevance signal.
func positionScore(i int) float64 {
	return 1 / float64(i+1)
}

func capResults(requested, apiLimit int) int {
	if requested <= 0 || requested > apiLimit {
		return apiLimit
	}
	return requested
}
