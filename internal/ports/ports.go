package ports

import (
	"context"

	"KnowledgeEvolver/internal/domain"
)

// SourceGatherer pulls fresh content for a topic from upstream web sources.
// A failed gather returns a zero FetchResult and an error the engine records
// against the topic; the error is never fatal to the cycle.
type SourceGatherer interface {
	Fetch(ctx context.Context, topic domain.Topic) (domain.FetchResult, error)
}

// KnowledgeStore persists accepted knowledge entries. Insert and AppendVersion
// are atomic with respect to the version counter; the store performs no
// deduplication logic itself.
type KnowledgeStore interface {
	FindByCategory(ctx context.Context, category domain.Category, limit int) ([]domain.KnowledgeEntry, error)
	Insert(ctx context.Context, entry domain.KnowledgeEntry) error
	AppendVersion(ctx context.Context, entry domain.KnowledgeEntry) (int, error)
}

// Merger reconciles one FetchResult with existing stored knowledge.
type Merger interface {
	Merge(ctx context.Context, result domain.FetchResult, category domain.Category) (domain.MergeDisposition, error)
}

// Evolver is the outward trigger/status surface of the scheduler loop,
// consumed by outer-layer reporting and control endpoints.
type Evolver interface {
	TriggerCycle() bool
	Status() domain.EngineStatus
}
