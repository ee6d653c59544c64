package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"KnowledgeEvolver/internal/domain"
	"KnowledgeEvolver/internal/ports"
)

const (
	defaultMaxPerSource = 5
	thinSnippetRunes    = 120
)

// StrategyGatherer implements SourceGatherer by fanning a topic's query out
// to every registered source, keeping the best-scoring hit, and optionally
// expanding thin snippets with extracted page text.
type StrategyGatherer struct {
	registry     *Registry
	extractor    *PageExtractor
	logger       *slog.Logger
	maxPerSource int
}

var _ ports.SourceGatherer = (*StrategyGatherer)(nil)

// NewStrategyGatherer wires the source registry; extractor may be nil.
func NewStrategyGatherer(registry *Registry, extractor *PageExtractor, logger *slog.Logger) *StrategyGatherer {
	return &StrategyGatherer{
		registry:     registry,
		extractor:    extractor,
		logger:       logger,
		maxPerSource: defaultMaxPerSource,
	}
}

// Fetch gathers one result for the topic. Per-source errors are tolerated as
// long as any source produced hits; a topic whose every source failed or came
// back empty yields an error the engine records against the topic.
func (g *StrategyGatherer) Fetch(ctx context.Context, topic domain.Topic) (domain.FetchResult, error) {
	if g.registry == nil || len(g.registry.Names()) == 0 {
		return domain.FetchResult{}, fmt.Errorf("no sources registered")
	}

	query := Query{
		Terms:      queryFor(topic),
		MaxResults: g.maxPerSource,
		TimeFilter: "week",
	}

	var (
		all     []Result
		lastErr error
	)
	for _, name := range g.registry.Names() {
		source, err := g.registry.Resolve(name)
		if err != nil {
			lastErr = err
			continue
		}

		results, err := source.Search(ctx, query)
		if err != nil {
			lastErr = err
			g.debug("source search failed", "source", name, "topic", topic.Name, "error", err)
			continue
		}
		all = append(all, results...)
	}

	if len(all) == 0 {
		if lastErr != nil {
			return domain.FetchResult{}, fmt.Errorf("gather %s: %w", topic.Name, lastErr)
		}
		return domain.FetchResult{}, fmt.Errorf("gather %s: no results", topic.Name)
	}

	best := pickBest(all)
	content := strings.TrimSpace(best.Snippet)

	if g.extractor != nil && len([]rune(content)) < thinSnippetRunes && best.URL != "" {
		if text, err := g.extractor.Extract(ctx, best.URL); err != nil {
			g.debug("page extraction failed", "url", best.URL, "error", err)
		} else if text != "" {
			content = strings.TrimSpace(content + "\n" + text)
		}
	}

	return domain.FetchResult{
		TopicName:  topic.Name,
		Title:      best.Title,
		Content:    content,
		Source:     best.Source,
		URL:        best.URL,
		Confidence: confidenceFor(best.Score),
		FetchedAt:  time.Now(),
	}, nil
}

func queryFor(topic domain.Topic) string {
	if len(topic.Keywords) > 0 {
		return strings.Join(topic.Keywords, " ")
	}
	return strings.ReplaceAll(topic.Name, "_", " ")
}

func pickBest(results []Result) Result {
	best := results[0]
	for _, r := range results[1:] {
		if r.Score > best.Score {
			best = r
			continue
		}
		if r.Score == best.Score && len(r.Snippet) > len(best.Snippet) {
			best = r
		}
	}
	return best
}

func confidenceFor(score float64) float64 {
	switch {
	case score <= 0:
		return 0.5
	case score > 1:
		return 1
	default:
		return score
	}
}

func (g *StrategyGatherer) debug(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Debug(msg, args...)
	}
}
