package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"KnowledgeEvolver/internal/domain"
	"KnowledgeEvolver/internal/ports"
	"KnowledgeEvolver/internal/topics"
)

// ErrStoreUnavailable is reported when every write attempted during a cycle
// failed; it is the only merge-phase condition that surfaces as a cycle error.
var ErrStoreUnavailable = errors.New("knowledge store unavailable for the entire cycle")

// reportHistory bounds the retained per-cycle accounting.
const reportHistory = 50

// EngineDeps wires the collaborators into the scheduler loop.
type EngineDeps struct {
	Queue    *topics.Queue
	Gatherer ports.SourceGatherer
	Merger   ports.Merger
	Logger   *slog.Logger
}

// EngineParams carries the validated scheduling configuration.
type EngineParams struct {
	Interval      time.Duration
	MaxConcurrent int
	Cooldown      time.Duration
	BackoffCap    time.Duration
}

// Engine drives the evolution cycle: peek topics, dispatch bounded-concurrency
// fetches, merge results, record outcomes, cool down. A single cycle is active
// at a time; the phases form Idle -> Gathering -> Merging -> CoolingDown.
type Engine struct {
	queue    *topics.Queue
	gatherer ports.SourceGatherer
	merger   ports.Merger
	logger   *slog.Logger
	params   EngineParams

	retry   *backoff.ExponentialBackOff
	trigger chan struct{}
	stop    chan struct{}
	once    sync.Once

	mu          sync.Mutex
	state       domain.EngineState
	lastCycle   time.Time
	lastSuccess time.Time
	cyclesRun   int
	reports     []domain.CycleReport
}

var _ ports.Evolver = (*Engine)(nil)

// NewEngine builds a stopped engine; call Run to start cycling.
func NewEngine(deps EngineDeps, params EngineParams) *Engine {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 2 * params.Cooldown
	retry.Multiplier = 2
	retry.MaxInterval = params.BackoffCap
	retry.MaxElapsedTime = 0
	retry.RandomizationFactor = 0
	retry.Reset()

	return &Engine{
		queue:    deps.Queue,
		gatherer: deps.Gatherer,
		merger:   deps.Merger,
		logger:   deps.Logger,
		params:   params,
		retry:    retry,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		state:    domain.StateIdle,
	}
}

// Run cycles until the context is cancelled or Stop is called. The stop
// signal is honored between phases only: in-flight fetches settle naturally
// and their results are merged before the loop exits.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.params.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stop:
			return nil
		case <-ticker.C:
		case <-e.trigger:
		}

		report, err := e.RunOnce(ctx)
		if err != nil {
			e.logError("cycle failed", "cycle", report.ID, "error", err)
		}

		if !e.sleep(ctx, report.NextCooldown) {
			e.setState(domain.StateIdle)
			return nil
		}
		e.setState(domain.StateIdle)
	}
}

// Stop requests a cooperative shutdown; safe to call more than once.
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.stop) })
}

// TriggerCycle requests an immediate cycle. It reports false when a trigger
// is already pending.
func (e *Engine) TriggerCycle() bool {
	select {
	case e.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns the current state-machine snapshot and aggregate health.
func (e *Engine) Status() domain.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	return domain.EngineStatus{
		State:             e.state,
		LastCycleAt:       e.lastCycle,
		LastSuccessAt:     e.lastSuccess,
		ActiveTopics:      e.queue.ActiveCount(),
		CyclesRun:         e.cyclesRun,
		RecentFailureRate: e.failureRateLocked(),
	}
}

// Reports returns a copy of the retained cycle accounting, newest last.
func (e *Engine) Reports() []domain.CycleReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.CycleReport, len(e.reports))
	copy(out, e.reports)
	return out
}

type settledFetch struct {
	topic  domain.Topic
	result domain.FetchResult
	err    error
}

// RunOnce executes exactly one gather/merge cycle and computes the cooldown
// the caller should honor before the next one; the engine is left in the
// cooling-down state until that delay elapses. Individual fetch failures are
// recorded against their topics and never abort the cycle; only a store that
// rejected every attempted write is surfaced as an error.
func (e *Engine) RunOnce(ctx context.Context) (domain.CycleReport, error) {
	report := domain.CycleReport{
		ID:      uuid.NewString(),
		Started: time.Now(),
	}

	e.setState(domain.StateGathering)
	batch := e.queue.Peek(e.params.MaxConcurrent)
	report.Dispatched = len(batch)

	settled := make([]settledFetch, len(batch))
	var g errgroup.Group
	g.SetLimit(e.params.MaxConcurrent)
	for i, topic := range batch {
		g.Go(func() error {
			result, err := e.gatherer.Fetch(ctx, topic)
			settled[i] = settledFetch{topic: topic, result: result, err: err}
			return nil
		})
	}
	_ = g.Wait() // every fetch settles; errors live in the slice

	e.setState(domain.StateMerging)
	outcomes := make([]domain.Outcome, len(settled))
	storeErrs := make([]error, len(settled))
	var mg errgroup.Group
	mg.SetLimit(e.params.MaxConcurrent)
	for i := range settled {
		if settled[i].err != nil {
			outcomes[i] = domain.OutcomeFailure
			e.logWarn("fetch failed", "topic", settled[i].topic.Name, "error", settled[i].err)
			continue
		}
		mg.Go(func() error {
			disposition, err := e.merger.Merge(ctx, settled[i].result, settled[i].topic.Category)
			if err != nil {
				storeErrs[i] = err
				outcomes[i] = domain.OutcomeSuccess // the fetch itself worked
				return nil
			}
			if disposition == domain.MergeDuplicate {
				outcomes[i] = domain.OutcomeDuplicate
			} else {
				outcomes[i] = domain.OutcomeSuccess
			}
			return nil
		})
	}
	_ = mg.Wait()

	attempted := 0
	for i := range settled {
		if settled[i].err == nil {
			attempted++
		}
		if storeErrs[i] != nil {
			report.StoreErrors++
			e.logError("merge failed", "topic", settled[i].topic.Name, "error", storeErrs[i])
		}
		switch outcomes[i] {
		case domain.OutcomeSuccess:
			if storeErrs[i] == nil {
				report.Succeeded++
			}
		case domain.OutcomeDuplicate:
			report.Duplicates++
		case domain.OutcomeFailure:
			report.Failed++
		}
		e.queue.RecordOutcome(settled[i].topic.Name, outcomes[i])
	}

	report.Finished = time.Now()
	report.NextCooldown = e.nextCooldown(report)
	e.setState(domain.StateCoolingDown)

	var cycleErr error
	if attempted > 0 && report.StoreErrors == attempted {
		cycleErr = ErrStoreUnavailable
	}

	e.recordCycle(report)
	e.logInfo("cycle complete",
		"cycle", report.ID,
		"dispatched", report.Dispatched,
		"succeeded", report.Succeeded,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
		"cooldown", report.NextCooldown,
	)

	return report, cycleErr
}

// nextCooldown extends the delay with capped exponential backoff when every
// dispatched fetch in the cycle failed, and resets it otherwise.
func (e *Engine) nextCooldown(report domain.CycleReport) time.Duration {
	if report.Dispatched > 0 && report.Failed == report.Dispatched {
		next := e.retry.NextBackOff()
		if next == backoff.Stop || next > e.params.BackoffCap {
			next = e.params.BackoffCap
		}
		return next
	}

	e.retry.Reset()
	return e.params.Cooldown
}

func (e *Engine) recordCycle(report domain.CycleReport) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cyclesRun++
	e.lastCycle = report.Finished
	if report.Succeeded > 0 {
		e.lastSuccess = report.Finished
	}

	e.reports = append(e.reports, report)
	if len(e.reports) > reportHistory {
		e.reports = e.reports[len(e.reports)-reportHistory:]
	}
}

func (e *Engine) failureRateLocked() float64 {
	dispatched, failed := 0, 0
	for _, r := range e.reports {
		dispatched += r.Dispatched
		failed += r.Failed
	}
	if dispatched == 0 {
		return 0
	}
	return float64(failed) / float64(dispatched)
}

func (e *Engine) setState(state domain.EngineState) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

// sleep waits out the cooldown, returning false when shutdown was requested.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-e.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) logInfo(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) logWarn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *Engine) logError(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Error(msg, args...)
	}
}
