package domain

import "time"

// Category hints steer which sources a topic is gathered from and which
// partition of the knowledge base it is matched against.
type Category string

const (
	CategoryGeneral   Category = "general"
	CategoryTechnical Category = "technical"
	CategoryNews      Category = "news"
	CategoryScience   Category = "science"
)

// Topic is a nominated subject the engine attempts to learn more about.
type Topic struct {
	Name          string
	Keywords      []string
	Priority      float64
	Category      Category
	LastAttempted time.Time
	Failures      int
	Inactive      bool
	CreatedAt     time.Time
}

// Outcome classifies how a topic's cycle attempt ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailure   Outcome = "failure"
)

// KnowledgeEntry is a persisted unit of learned content. The version counter
// starts at 1 and increases by exactly one on every content-changing update.
type KnowledgeEntry struct {
	ID         string
	Title      string
	Content    string
	Source     string
	URL        string
	Category   Category
	Confidence float64
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FetchResult is the transient output of one gather attempt for one topic.
// It lives for a single cycle and is discarded after merging.
type FetchResult struct {
	TopicName  string
	Title      string
	Content    string
	Source     string
	URL        string
	Confidence float64
	FetchedAt  time.Time
}

// MergeDisposition reports what the deduplicator decided for a FetchResult.
type MergeDisposition string

const (
	MergeInserted  MergeDisposition = "inserted"
	MergeUpdated   MergeDisposition = "updated"
	MergeDuplicate MergeDisposition = "duplicate"
)

// EngineState enumerates the scheduler loop phases.
type EngineState string

const (
	StateIdle        EngineState = "idle"
	StateGathering   EngineState = "gathering"
	StateMerging     EngineState = "merging"
	StateCoolingDown EngineState = "cooling_down"
)

// CycleReport accounts for one full gather/merge iteration.
type CycleReport struct {
	ID           string
	Started      time.Time
	Finished     time.Time
	Dispatched   int
	Succeeded    int
	Duplicates   int
	Failed       int
	StoreErrors  int
	NextCooldown time.Duration
}

// EngineStatus is the aggregate health snapshot returned by the status query.
// KnowledgeEntries is filled by the outer wiring from the store; the engine
// itself has no store handle and reports zero.
type EngineStatus struct {
	State             EngineState
	LastCycleAt       time.Time
	LastSuccessAt     time.Time
	ActiveTopics      int
	KnowledgeEntries  int
	CyclesRun         int
	RecentFailureRate float64
}
