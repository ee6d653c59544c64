package topics

import (
	"math"
	"sort"
	"sync"
	"time"

	"KnowledgeEvolver/internal/domain"
)

// ScoreFunc computes a topic's new priority after a cycle outcome. The exact
// heuristic is a swappable policy; the queue only clamps the result to a
// finite non-negative value.
type ScoreFunc func(topic domain.Topic, outcome domain.Outcome) float64

// DefaultScore decays priority on success, decays twice as hard on duplicates
// (the topic is yielding nothing new), and leaves failures to the ceiling.
func DefaultScore(decay float64) ScoreFunc {
	return func(topic domain.Topic, outcome domain.Outcome) float64 {
		switch outcome {
		case domain.OutcomeSuccess:
			return topic.Priority * decay
		case domain.OutcomeDuplicate:
			return topic.Priority * decay * decay
		default:
			return topic.Priority
		}
	}
}

// Queue holds candidate learning topics ordered by priority. All mutation
// happens under a single lock; completing fetches record outcomes from
// multiple goroutines.
type Queue struct {
	mu        sync.Mutex
	topics    map[string]*domain.Topic
	ceiling   int
	boostStep float64
	score     ScoreFunc
	now       func() time.Time
}

// NewQueue builds an empty queue. A topic is deactivated once its consecutive
// failure count reaches ceiling.
func NewQueue(ceiling int, boostStep float64, score ScoreFunc) *Queue {
	if score == nil {
		score = DefaultScore(0.85)
	}
	return &Queue{
		topics:    map[string]*domain.Topic{},
		ceiling:   ceiling,
		boostStep: boostStep,
		score:     score,
		now:       time.Now,
	}
}

// Add inserts a topic, replacing any existing one with the same name.
func (q *Queue) Add(topic domain.Topic) {
	q.mu.Lock()
	defer q.mu.Unlock()

	topic.Priority = clampPriority(topic.Priority)
	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = q.now()
	}
	q.topics[topic.Name] = &topic
}

// Boost inserts the topic if unknown, otherwise raises its priority by the
// configured step and merges new keywords. A boosted topic is reactivated:
// renewed outside interest outweighs a stale failure streak.
func (q *Queue) Boost(topic domain.Topic) {
	q.mu.Lock()
	defer q.mu.Unlock()

	existing, ok := q.topics[topic.Name]
	if !ok {
		topic.Priority = clampPriority(topic.Priority)
		if topic.CreatedAt.IsZero() {
			topic.CreatedAt = q.now()
		}
		q.topics[topic.Name] = &topic
		return
	}

	existing.Priority = clampPriority(existing.Priority + q.boostStep)
	existing.Failures = 0
	existing.Inactive = false
	existing.Keywords = mergeKeywords(existing.Keywords, topic.Keywords)
}

// Peek returns up to n active topics ordered by priority descending, ties
// broken by oldest last-attempted first so starved topics surface.
func (q *Queue) Peek(n int) []domain.Topic {
	q.mu.Lock()
	defer q.mu.Unlock()

	candidates := make([]domain.Topic, 0, len(q.topics))
	for _, t := range q.topics {
		if t.Inactive {
			continue
		}
		candidates = append(candidates, *t)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].LastAttempted.Before(candidates[j].LastAttempted)
	})

	if n < len(candidates) {
		candidates = candidates[:n]
	}
	return candidates
}

// RecordOutcome applies a settled fetch outcome to a topic: any non-failure
// resets the failure count, a failure increments it, and a topic whose streak
// reaches the ceiling is deactivated and excluded from future peeks.
func (q *Queue) RecordOutcome(name string, outcome domain.Outcome) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.topics[name]
	if !ok {
		return
	}

	t.LastAttempted = q.now()

	if outcome == domain.OutcomeFailure {
		t.Failures++
		if t.Failures >= q.ceiling {
			t.Inactive = true
		}
	} else {
		t.Failures = 0
	}

	t.Priority = clampPriority(q.score(*t, outcome))
}

// Retire removes a topic from the queue entirely.
func (q *Queue) Retire(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.topics[name]; !ok {
		return false
	}
	delete(q.topics, name)
	return true
}

// ActiveCount reports how many topics are still eligible for peeking.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, t := range q.topics {
		if !t.Inactive {
			count++
		}
	}
	return count
}

// Len reports the total number of topics, active or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.topics)
}

func clampPriority(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0
	}
	return p
}

func mergeKeywords(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, k := range existing {
		seen[k] = struct{}{}
	}
	for _, k := range extra {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		existing = append(existing, k)
	}
	return existing
}
