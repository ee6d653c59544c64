package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"KnowledgeEvolver/internal/domain"
	"KnowledgeEvolver/internal/ports"
)

// lookupLimit bounds how many category entries are compared per merge.
const lookupLimit = 200

// Merger decides whether gathered content is new knowledge, an update to an
// existing entry, or a duplicate carrying no new information. All merges for
// one category serialize on a shared lock: identity is resolved by the
// category-scoped closest-match lookup, so the lookup and the write must be
// one critical section. Different categories merge in parallel.
type Merger struct {
	store              ports.KnowledgeStore
	subjectThreshold   float64
	duplicateThreshold float64
	logger             *slog.Logger

	mu    sync.Mutex
	locks map[domain.Category]*sync.Mutex
}

var _ ports.Merger = (*Merger)(nil)

// NewMerger wires the knowledge store with the similarity thresholds.
func NewMerger(store ports.KnowledgeStore, subjectThreshold, duplicateThreshold float64, logger *slog.Logger) *Merger {
	return &Merger{
		store:              store,
		subjectThreshold:   subjectThreshold,
		duplicateThreshold: duplicateThreshold,
		logger:             logger,
		locks:              map[domain.Category]*sync.Mutex{},
	}
}

// Merge reconciles one fetch result against the knowledge base.
func (m *Merger) Merge(ctx context.Context, result domain.FetchResult, category domain.Category) (domain.MergeDisposition, error) {
	lock := m.lockFor(category)
	lock.Lock()
	defer lock.Unlock()

	entries, err := m.store.FindByCategory(ctx, category, lookupLimit)
	if err != nil {
		return "", fmt.Errorf("lookup category %s: %w", category, err)
	}

	subject := result.Content + " " + result.Title
	best, bestSim := closestEntry(subject, entries)

	if best != nil && bestSim >= m.subjectThreshold {
		if bestSim >= m.duplicateThreshold {
			m.debug("merge rejected duplicate", "entry", best.ID, "similarity", bestSim)
			return domain.MergeDuplicate, nil
		}

		updated := *best
		updated.Title = result.Title
		updated.Content = result.Content
		updated.Source = result.Source
		updated.URL = result.URL
		updated.Confidence = clampConfidence(result.Confidence)

		version, err := m.store.AppendVersion(ctx, updated)
		if err != nil {
			return "", fmt.Errorf("append version: %w", err)
		}

		m.debug("merge updated entry", "entry", best.ID, "version", version, "similarity", bestSim)
		return domain.MergeUpdated, nil
	}

	entry := domain.KnowledgeEntry{
		ID:         uuid.NewString(),
		Title:      result.Title,
		Content:    result.Content,
		Source:     result.Source,
		URL:        result.URL,
		Category:   category,
		Confidence: clampConfidence(result.Confidence),
		Version:    1,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	if err := m.store.Insert(ctx, entry); err != nil {
		return "", fmt.Errorf("insert entry: %w", err)
	}

	m.debug("merge inserted entry", "entry", entry.ID, "category", category)
	return domain.MergeInserted, nil
}

func (m *Merger) lockFor(category domain.Category) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[category]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[category] = lock
	}
	return lock
}

func (m *Merger) debug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

func closestEntry(subject string, entries []domain.KnowledgeEntry) (*domain.KnowledgeEntry, float64) {
	var (
		best    *domain.KnowledgeEntry
		bestSim float64
	)

	for i := range entries {
		sim := similarity(subject, entries[i].Content+" "+entries[i].Title)
		if sim > bestSim {
			best = &entries[i]
			bestSim = sim
		}
	}

	return best, bestSim
}

// similarity is the normalized token-overlap (Jaccard) of the two texts.
func similarity(a, b string) float64 {
	left := tokenSet(a)
	right := tokenSet(b)
	if len(left) == 0 || len(right) == 0 {
		return 0
	}

	intersection := 0
	for token := range left {
		if _, ok := right[token]; ok {
			intersection++
		}
	}

	union := len(left) + len(right) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func clampConfidence(c float64) float64 {
	switch {
	case c <= 0:
		return 0.8
	case c > 1:
		return 1
	default:
		return c
	}
}
