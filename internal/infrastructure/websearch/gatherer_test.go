package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"KnowledgeEvolver/internal/domain"
)

type stubSource struct {
	name    string
	results []Result
	err     error
	gotQ    Query
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(_ context.Context, q Query) ([]Result, error) {
	s.gotQ = q
	return s.results, s.err
}

func registryOf(sources ...Source) *Registry {
	r := NewRegistry()
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

func TestFetchPicksBestAcrossSources(t *testing.T) {
	t.Parallel()

	low := &stubSource{name: "low", results: []Result{
		{Title: "weak", URL: "https://example.org/weak", Snippet: strings.Repeat("low relevance text ", 10), Source: "low", Score: 0.3},
	}}
	high := &stubSource{name: "high", results: []Result{
		{Title: "strong", URL: "https://example.org/strong", Snippet: strings.Repeat("high relevance text ", 10), Source: "high", Score: 0.9},
	}}

	g := NewStrategyGatherer(registryOf(low, high), nil, nil)

	result, err := g.Fetch(context.Background(), domain.Topic{Name: "ai_technology", Keywords: []string{"machine", "learning"}})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	if result.Title != "strong" {
		t.Fatalf("expected best-scoring result, got %s", result.Title)
	}
	if result.Source != "high" {
		t.Fatalf("unexpected source: %s", result.Source)
	}
	if result.TopicName != "ai_technology" {
		t.Fatalf("unexpected topic name: %s", result.TopicName)
	}
	if result.Confidence != 0.9 {
		t.Fatalf("unexpected confidence: %f", result.Confidence)
	}
	if result.FetchedAt.IsZero() {
		t.Fatal("FetchedAt must be set")
	}

	if low.gotQ.Terms != "machine learning" {
		t.Fatalf("keywords should drive the query, got %q", low.gotQ.Terms)
	}
}

func TestFetchQueryFallsBackToTopicName(t *testing.T) {
	t.Parallel()

	source := &stubSource{name: "only", results: []Result{
		{Title: "hit", Snippet: strings.Repeat("text ", 40), Score: 0.5},
	}}
	g := NewStrategyGatherer(registryOf(source), nil, nil)

	if _, err := g.Fetch(context.Background(), domain.Topic{Name: "quantum_computing"}); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if source.gotQ.Terms != "quantum computing" {
		t.Fatalf("underscores should become spaces, got %q", source.gotQ.Terms)
	}
}

func TestFetchToleratesPartialSourceFailure(t *testing.T) {
	t.Parallel()

	broken := &stubSource{name: "broken", err: fmt.Errorf("quota exceeded")}
	working := &stubSource{name: "working", results: []Result{
		{Title: "hit", Snippet: strings.Repeat("text ", 40), Source: "working", Score: 0.5},
	}}

	g := NewStrategyGatherer(registryOf(broken, working), nil, nil)

	result, err := g.Fetch(context.Background(), domain.Topic{Name: "science_research"})
	if err != nil {
		t.Fatalf("Fetch should succeed when one source works: %v", err)
	}
	if result.Source != "working" {
		t.Fatalf("unexpected source: %s", result.Source)
	}
}

func TestFetchFailsWhenAllSourcesFail(t *testing.T) {
	t.Parallel()

	g := NewStrategyGatherer(registryOf(
		&stubSource{name: "a", err: fmt.Errorf("down")},
		&stubSource{name: "b", err: fmt.Errorf("also down")},
	), nil, nil)

	if _, err := g.Fetch(context.Background(), domain.Topic{Name: "anything"}); err == nil {
		t.Fatal("expected error when every source failed")
	}
}

func TestFetchFailsWhenNoResults(t *testing.T) {
	t.Parallel()

	g := NewStrategyGatherer(registryOf(&stubSource{name: "empty"}), nil, nil)

	if _, err := g.Fetch(context.Background(), domain.Topic{Name: "anything"}); err == nil {
		t.Fatal("expected error for empty result set")
	}
}

func TestFetchFailsWithoutSources(t *testing.T) {
	t.Parallel()

	g := NewStrategyGatherer(NewRegistry(), nil, nil)

	if _, err := g.Fetch(context.Background(), domain.Topic{Name: "anything"}); err == nil {
		t.Fatal("expected error for empty registry")
	}
}

func TestFetchExpandsThinSnippets(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Full article body with much more detail than the snippet.</p></body></html>`))
	}))
	defer server.Close()

	source := &stubSource{name: "thin", results: []Result{
		{Title: "hit", URL: server.URL, Snippet: "short teaser", Source: "thin", Score: 0.5},
	}}
	g := NewStrategyGatherer(registryOf(source), NewPageExtractor(server.Client()), nil)

	result, err := g.Fetch(context.Background(), domain.Topic{Name: "anything"})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if !strings.Contains(result.Content, "short teaser") {
		t.Fatalf("snippet must be kept, got %q", result.Content)
	}
	if !strings.Contains(result.Content, "Full article body") {
		t.Fatalf("thin snippet should be expanded with page text, got %q", result.Content)
	}
}

func TestFetchKeepsResultWhenExpansionFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	source := &stubSource{name: "thin", results: []Result{
		{Title: "hit", URL: server.URL, Snippet: "short teaser", Source: "thin", Score: 0.5},
	}}
	g := NewStrategyGatherer(registryOf(source), NewPageExtractor(server.Client()), nil)

	result, err := g.Fetch(context.Background(), domain.Topic{Name: "anything"})
	if err != nil {
		t.Fatalf("extraction failure must not fail the fetch: %v", err)
	}
	if result.Content != "short teaser" {
		t.Fatalf("unexpected content: %q", result.Content)
	}
}

func TestPickBest(t *testing.T) {
	t.Parallel()

	best := pickBest([]Result{
		{Title: "a", Score: 0.5, Snippet: "short"},
		{Title: "b", Score: 0.5, Snippet: "much longer snippet"},
		{Title: "c", Score: 0.2, Snippet: "irrelevant"},
	})
	if best.Title != "b" {
		t.Fatalf("score ties should prefer the longer snippet, got %s", best.Title)
	}
}

func TestConfidenceFor(t *testing.T) {
	t.Parallel()

	if got := confidenceFor(-1); got != 0.5 {
		t.Fatalf("unexpected: %f", got)
	}
	if got := confidenceFor(0); got != 0.5 {
		t.Fatalf("unexpected: %f", got)
	}
	if got := confidenceFor(2.5); got != 1.0 {
		t.Fatalf("unexpected: %f", got)
	}
	if got := confidenceFor(0.7); got != 0.7 {
		t.Fatalf("unexpected: %f", got)
	}
}
