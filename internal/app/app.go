package app

import (
	"context"
	"fmt"
	"log/slog"

	"KnowledgeEvolver/internal/config"
	"KnowledgeEvolver/internal/domain"
	"KnowledgeEvolver/internal/infrastructure/storage"
	"KnowledgeEvolver/internal/infrastructure/websearch"
	"KnowledgeEvolver/internal/logging"
	"KnowledgeEvolver/internal/topics"
	"KnowledgeEvolver/internal/usecase"
)

// Application wires configs to the evolution engine and its collaborators.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	store  *storage.SQLiteStore
	queue  *topics.Queue
	engine *usecase.Engine
}

// New builds a runnable application instance. The configuration must already
// be validated.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}

	registry := websearch.NewRegistry()
	if cfg.Sources.Google.APIKey != "" && cfg.Sources.Google.EngineID != "" {
		registry.Register(websearch.NewGoogleSource(cfg.Sources.Google.APIKey, cfg.Sources.Google.EngineID, nil))
	} else {
		baseLogger.Warn("google source not configured, skipping")
	}
	if cfg.Sources.YouTube.APIKey != "" {
		registry.Register(websearch.NewYouTubeSource(cfg.Sources.YouTube.APIKey, nil))
	} else {
		baseLogger.Warn("youtube source not configured, skipping")
	}
	registry.Register(websearch.NewRedditSource(cfg.Sources.Reddit.UserAgent, nil))

	gatherer := websearch.NewStrategyGatherer(
		registry,
		websearch.NewPageExtractor(nil),
		baseLogger.With("component", "gatherer"),
	)

	queue := topics.NewQueue(
		cfg.Evolution.FailureCeiling,
		cfg.Evolution.BoostStep,
		topics.DefaultScore(cfg.Evolution.PriorityDecay),
	)
	for _, seed := range cfg.Topics {
		queue.Add(seed.Domain())
	}

	merger := usecase.NewMerger(
		store,
		cfg.Similarity.SubjectThreshold,
		cfg.Similarity.DuplicateThreshold,
		baseLogger.With("component", "merger"),
	)

	engine := usecase.NewEngine(
		usecase.EngineDeps{
			Queue:    queue,
			Gatherer: gatherer,
			Merger:   merger,
			Logger:   baseLogger.With("component", "engine"),
		},
		usecase.EngineParams{
			Interval:      cfg.Evolution.Interval(),
			MaxConcurrent: cfg.Evolution.MaxConcurrentSearches,
			Cooldown:      cfg.Evolution.Cooldown(),
			BackoffCap:    cfg.Evolution.BackoffCap(),
		},
	)

	return &Application{cfg: cfg, logger: baseLogger, store: store, queue: queue, engine: engine}, nil
}

// Engine exposes the trigger/status surface to outer layers.
func (a *Application) Engine() *usecase.Engine {
	return a.engine
}

// Status returns the engine snapshot augmented with the stored entry count.
func (a *Application) Status(ctx context.Context) (domain.EngineStatus, error) {
	status := a.engine.Status()

	count, err := a.store.CountEntries(ctx)
	if err != nil {
		return status, fmt.Errorf("count entries: %w", err)
	}
	status.KnowledgeEntries = count

	return status, nil
}

// BoostTopic nominates a new learning topic or raises the priority of an
// existing one, reactivating it if a failure streak had deactivated it.
func (a *Application) BoostTopic(topic domain.Topic) {
	a.queue.Boost(topic)
}

// RetireTopic removes a topic from the learning queue permanently. It reports
// whether the topic existed.
func (a *Application) RetireTopic(name string) bool {
	return a.queue.Retire(name)
}

// Run drives the background learning loop until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if !a.cfg.Evolution.IsEnabled() {
		a.logger.Info("background learning is disabled in configuration")
		return nil
	}

	a.logger.Info("background learning started",
		"topics", len(a.cfg.Topics),
		"interval", a.cfg.Evolution.Interval(),
		"max_concurrent", a.cfg.Evolution.MaxConcurrentSearches,
	)

	return a.engine.Run(ctx)
}

// Close stops the engine and releases the store.
func (a *Application) Close() error {
	a.engine.Stop()
	return a.store.Close()
}
