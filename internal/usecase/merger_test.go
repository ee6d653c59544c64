package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KnowledgeEvolver/internal/domain"
)

// memStore is an in-memory KnowledgeStore double with the same version
// semantics as the SQLite adapter.
type memStore struct {
	mu        sync.Mutex
	entries   map[string]domain.KnowledgeEntry
	failFind  error
	failWrite error
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]domain.KnowledgeEntry{}}
}

func (s *memStore) FindByCategory(_ context.Context, category domain.Category, _ int) ([]domain.KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFind != nil {
		return nil, s.failFind
	}

	var out []domain.KnowledgeEntry
	for _, e := range s.entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) Insert(_ context.Context, entry domain.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrite != nil {
		return s.failWrite
	}
	if _, ok := s.entries[entry.ID]; ok {
		return fmt.Errorf("entry %s already exists", entry.ID)
	}
	entry.Version = 1
	s.entries[entry.ID] = entry
	return nil
}

func (s *memStore) AppendVersion(_ context.Context, entry domain.KnowledgeEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrite != nil {
		return 0, s.failWrite
	}
	existing, ok := s.entries[entry.ID]
	if !ok {
		return 0, fmt.Errorf("entry %s not found", entry.ID)
	}

	existing.Title = entry.Title
	existing.Content = entry.Content
	existing.Source = entry.Source
	existing.URL = entry.URL
	existing.Confidence = entry.Confidence
	existing.Version++
	existing.UpdatedAt = time.Now()
	s.entries[entry.ID] = existing
	return existing.Version, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *memStore) only(t *testing.T) domain.KnowledgeEntry {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.entries, 1)
	for _, e := range s.entries {
		return e
	}
	panic("unreachable")
}

func testMerger(store *memStore) *Merger {
	return NewMerger(store, 0.45, 0.9, nil)
}

func TestMergeInsertsNewEntry(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	m := testMerger(store)

	disposition, err := m.Merge(context.Background(), domain.FetchResult{
		TopicName: "ai_technology",
		Title:     "Transformers overview",
		Content:   "attention mechanisms power modern language models",
		Source:    "google",
	}, domain.CategoryTechnical)
	require.NoError(t, err)
	assert.Equal(t, domain.MergeInserted, disposition)

	entry := store.only(t)
	assert.Equal(t, 1, entry.Version)
	assert.Equal(t, domain.CategoryTechnical, entry.Category)
	assert.NotEmpty(t, entry.ID)
}

func TestMergeIdenticalResultIsDuplicate(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	m := testMerger(store)

	result := domain.FetchResult{
		TopicName: "programming",
		Content:   "generics landed in go and changed library design",
		Source:    "reddit",
	}

	first, err := m.Merge(context.Background(), result, domain.CategoryTechnical)
	require.NoError(t, err)
	assert.Equal(t, domain.MergeInserted, first)

	second, err := m.Merge(context.Background(), result, domain.CategoryTechnical)
	require.NoError(t, err)
	assert.Equal(t, domain.MergeDuplicate, second)

	assert.Equal(t, 1, store.count(), "duplicate merge must not create a second entry")
	assert.Equal(t, 1, store.only(t).Version, "duplicate merge must not bump the version")
}

func TestMergeSameSubjectNewContentUpdatesVersion(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	m := testMerger(store)

	_, err := m.Merge(context.Background(), domain.FetchResult{
		Content: "go concurrency patterns channels goroutines select",
	}, domain.CategoryTechnical)
	require.NoError(t, err)

	// Roughly half the tokens overlap: same subject, materially new content.
	disposition, err := m.Merge(context.Background(), domain.FetchResult{
		Content: "go concurrency patterns mutex waitgroup select",
	}, domain.CategoryTechnical)
	require.NoError(t, err)
	assert.Equal(t, domain.MergeUpdated, disposition)

	entry := store.only(t)
	assert.Equal(t, 2, entry.Version)
	assert.Contains(t, entry.Content, "waitgroup")
}

func TestMergeUnrelatedContentIsSeparateEntry(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	m := testMerger(store)

	_, err := m.Merge(context.Background(), domain.FetchResult{
		Content: "quantum computing error correction milestones",
	}, domain.CategoryScience)
	require.NoError(t, err)

	disposition, err := m.Merge(context.Background(), domain.FetchResult{
		Content: "deep ocean exploration submersible discoveries",
	}, domain.CategoryScience)
	require.NoError(t, err)
	assert.Equal(t, domain.MergeInserted, disposition)
	assert.Equal(t, 2, store.count())
}

func TestConcurrentMergesNeverLoseAnUpdate(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	m := testMerger(store)

	_, err := m.Merge(context.Background(), domain.FetchResult{
		Content: "kernel scheduler latency improvements benchmarks",
	}, domain.CategoryTechnical)
	require.NoError(t, err)

	variants := []string{
		"kernel scheduler latency improvements upstream",
		"kernel scheduler latency improvements regressions",
	}

	dispositions := make([]domain.MergeDisposition, len(variants))
	var wg sync.WaitGroup
	for i, content := range variants {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, mergeErr := m.Merge(context.Background(), domain.FetchResult{Content: content}, domain.CategoryTechnical)
			assert.NoError(t, mergeErr)
			dispositions[i] = d
		}()
	}
	wg.Wait()

	updated := 0
	for _, d := range dispositions {
		assert.Contains(t, []domain.MergeDisposition{domain.MergeUpdated, domain.MergeDuplicate}, d)
		if d == domain.MergeUpdated {
			updated++
		}
	}
	require.GreaterOrEqual(t, updated, 1, "at least one concurrent merge must land")

	entry := store.only(t)
	assert.Equal(t, 1+updated, entry.Version, "no version skipped, no update lost")
}

func TestMergePropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.failFind = fmt.Errorf("database is locked")
	m := testMerger(store)

	_, err := m.Merge(context.Background(), domain.FetchResult{Content: "anything"}, domain.CategoryGeneral)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup category")
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, similarity("alpha beta gamma", "gamma beta alpha"))
	assert.Equal(t, 0.0, similarity("alpha beta", "gamma delta"))
	assert.Equal(t, 0.0, similarity("", "anything"))
	assert.InDelta(t, 1.0/3.0, similarity("alpha beta", "beta gamma"), 1e-9)
	assert.Equal(t, 1.0, similarity("Alpha, Beta!", "alpha beta"), "case and punctuation are normalized")
}
