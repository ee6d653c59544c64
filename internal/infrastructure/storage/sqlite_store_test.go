package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KnowledgeEvolver/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "kb.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleEntry(id string, category domain.Category) domain.KnowledgeEntry {
	return domain.KnowledgeEntry{
		ID:         id,
		Title:      "sample title",
		Content:    "sample content body",
		Source:     "google",
		URL:        "https://example.org/" + id,
		Category:   category,
		Confidence: 0.8,
	}
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	entry := sampleEntry("e1", domain.CategoryTechnical)
	require.NoError(t, store.Insert(ctx, entry))

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, entry.Title, got.Title)
	assert.Equal(t, entry.Content, got.Content)
	assert.Equal(t, entry.URL, got.URL)
	assert.Equal(t, domain.CategoryTechnical, got.Category)
	assert.Equal(t, 1, got.Version)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, sampleEntry("e1", domain.CategoryGeneral)))
	assert.Error(t, store.Insert(ctx, sampleEntry("e1", domain.CategoryGeneral)))
}

func TestAppendVersionIncrementsStrictly(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	entry := sampleEntry("e1", domain.CategoryNews)
	require.NoError(t, store.Insert(ctx, entry))

	entry.Content = "revised content body"
	version, err := store.AppendVersion(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	entry.Content = "revised again"
	version, err = store.AppendVersion(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, "revised again", got.Content)
}

func TestAppendVersionUnknownEntry(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	_, err := store.AppendVersion(context.Background(), sampleEntry("ghost", domain.CategoryGeneral))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestConcurrentAppendsMintDistinctVersions(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	entry := sampleEntry("e1", domain.CategoryTechnical)
	require.NoError(t, store.Insert(ctx, entry))

	const writers = 8
	versions := make([]int, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			update := entry
			update.Content = "concurrent revision"
			v, err := store.AppendVersion(ctx, update)
			assert.NoError(t, err)
			versions[i] = v
		}()
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, v := range versions {
		assert.False(t, seen[v], "version %d minted twice", v)
		seen[v] = true
	}

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1+writers, got.Version)
}

func TestFindByCategoryFiltersAndOrders(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	older := sampleEntry("old", domain.CategoryScience)
	older.CreatedAt = time.Now().Add(-time.Hour)
	older.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, older))

	newer := sampleEntry("new", domain.CategoryScience)
	require.NoError(t, store.Insert(ctx, newer))

	other := sampleEntry("other", domain.CategoryNews)
	require.NoError(t, store.Insert(ctx, other))

	entries, err := store.FindByCategory(ctx, domain.CategoryScience, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].ID, "newest first")
	assert.Equal(t, "old", entries[1].ID)

	entries, err = store.FindByCategory(ctx, domain.CategoryScience, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = store.FindByCategory(ctx, domain.CategoryGeneral, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCountEntries(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	count, err := store.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, store.Insert(ctx, sampleEntry("e1", domain.CategoryGeneral)))
	require.NoError(t, store.Insert(ctx, sampleEntry("e2", domain.CategoryGeneral)))

	count, err = store.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
