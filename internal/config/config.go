package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"KnowledgeEvolver/internal/domain"
)

const (
	configPathEnv    = "KNOWLEDGE_EVOLVER_CONFIG"
	databasePathEnv  = "KNOWLEDGE_DB_PATH"
	googleAPIKeyEnv  = "GOOGLE_SEARCH_API_KEY"
	googleEngineEnv  = "GOOGLE_SEARCH_ENGINE_ID"
	youtubeAPIKeyEnv = "YOUTUBE_API_KEY"
	defaultDBPath    = "knowledge_base/kb.sqlite"
	defaultUserAgent = "KnowledgeEvolver/1.0 (research)"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Evolution  EvolutionConfig  `yaml:"evolution"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Sources    SourcesConfig    `yaml:"sources"`
	Topics     []TopicConfig    `yaml:"topics"`
}

// LoggingConfig controls level and output format of the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DatabaseConfig describes the SQLite knowledge base location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EvolutionConfig drives the scheduler loop.
type EvolutionConfig struct {
	Enabled               *bool   `yaml:"enabled"`
	IntervalMinutes       int     `yaml:"intervalMinutes"`
	MaxConcurrentSearches int     `yaml:"maxConcurrentSearches"`
	FailureCeiling        int     `yaml:"failureCeiling"`
	CooldownSeconds       int     `yaml:"cooldownSeconds"`
	BackoffCapSeconds     int     `yaml:"backoffCapSeconds"`
	PriorityDecay         float64 `yaml:"priorityDecay"`
	BoostStep             float64 `yaml:"boostStep"`
}

// Interval converts the configured cycle interval to a duration.
func (e EvolutionConfig) Interval() time.Duration {
	return time.Duration(e.IntervalMinutes) * time.Minute
}

// Cooldown converts the minimum inter-cycle delay to a duration.
func (e EvolutionConfig) Cooldown() time.Duration {
	return time.Duration(e.CooldownSeconds) * time.Second
}

// BackoffCap converts the backoff ceiling to a duration.
func (e EvolutionConfig) BackoffCap() time.Duration {
	return time.Duration(e.BackoffCapSeconds) * time.Second
}

// IsEnabled reports whether the background loop should run. An unset flag
// means enabled; only an explicit false in the file disables it.
func (e EvolutionConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// SimilarityConfig holds the merger thresholds. Content whose similarity to
// the closest stored entry meets SubjectThreshold is the same subject; at or
// above DuplicateThreshold it carries no new information.
type SimilarityConfig struct {
	SubjectThreshold   float64 `yaml:"subjectThreshold"`
	DuplicateThreshold float64 `yaml:"duplicateThreshold"`
}

// SourcesConfig groups credentials and knobs for the web sources.
type SourcesConfig struct {
	Google  GoogleConfig  `yaml:"google"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Reddit  RedditConfig  `yaml:"reddit"`
}

// GoogleConfig wires the Custom Search JSON API.
type GoogleConfig struct {
	APIKey   string `yaml:"apiKey"`
	EngineID string `yaml:"engineId"`
}

// YouTubeConfig wires the YouTube Data API.
type YouTubeConfig struct {
	APIKey string `yaml:"apiKey"`
}

// RedditConfig wires the public Reddit search endpoint.
type RedditConfig struct {
	UserAgent string `yaml:"userAgent"`
}

// TopicConfig seeds an initial learning topic.
type TopicConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Priority float64  `yaml:"priority"`
	Category string   `yaml:"category"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Topics) == 0 {
		cfg.Topics = defaultConfig().Topics
	}

	return cfg
}

// Validate rejects out-of-range values before anything is wired. A failing
// configuration stops startup; it is never silently defaulted away.
func (c Config) Validate() error {
	e := c.Evolution
	if e.MaxConcurrentSearches <= 0 {
		return fmt.Errorf("evolution.maxConcurrentSearches must be positive, got %d", e.MaxConcurrentSearches)
	}
	if e.IntervalMinutes <= 0 {
		return fmt.Errorf("evolution.intervalMinutes must be positive, got %d", e.IntervalMinutes)
	}
	if e.FailureCeiling < 1 {
		return fmt.Errorf("evolution.failureCeiling must be at least 1, got %d", e.FailureCeiling)
	}
	if e.CooldownSeconds <= 0 {
		return fmt.Errorf("evolution.cooldownSeconds must be positive, got %d", e.CooldownSeconds)
	}
	if e.BackoffCapSeconds < e.CooldownSeconds {
		return fmt.Errorf("evolution.backoffCapSeconds (%d) must not be below cooldownSeconds (%d)",
			e.BackoffCapSeconds, e.CooldownSeconds)
	}
	if e.PriorityDecay <= 0 || e.PriorityDecay > 1 {
		return fmt.Errorf("evolution.priorityDecay must be in (0,1], got %g", e.PriorityDecay)
	}
	if e.BoostStep <= 0 {
		return fmt.Errorf("evolution.boostStep must be positive, got %g", e.BoostStep)
	}

	s := c.Similarity
	if s.SubjectThreshold <= 0 || s.SubjectThreshold >= 1 {
		return fmt.Errorf("similarity.subjectThreshold must be in (0,1), got %g", s.SubjectThreshold)
	}
	if s.DuplicateThreshold <= s.SubjectThreshold || s.DuplicateThreshold > 1 {
		return fmt.Errorf("similarity.duplicateThreshold must be in (subjectThreshold,1], got %g", s.DuplicateThreshold)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}

	for _, t := range c.Topics {
		if t.Name == "" {
			return fmt.Errorf("topics: every topic needs a name")
		}
		if t.Priority < 0 {
			return fmt.Errorf("topic %s: priority must be non-negative, got %g", t.Name, t.Priority)
		}
	}

	return nil
}

// Domain converts a seed topic to its domain representation.
func (t TopicConfig) Domain() domain.Topic {
	cat := domain.Category(t.Category)
	if cat == "" {
		cat = domain.CategoryGeneral
	}
	return domain.Topic{
		Name:      t.Name,
		Keywords:  t.Keywords,
		Priority:  t.Priority,
		Category:  cat,
		CreatedAt: time.Now(),
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(googleAPIKeyEnv); v != "" {
		c.Sources.Google.APIKey = v
	}

	if v := os.Getenv(googleEngineEnv); v != "" {
		c.Sources.Google.EngineID = v
	}

	if v := os.Getenv(youtubeAPIKeyEnv); v != "" {
		c.Sources.YouTube.APIKey = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Evolution.IntervalMinutes != 0 {
		base.Evolution.IntervalMinutes = override.Evolution.IntervalMinutes
	}
	if override.Evolution.MaxConcurrentSearches != 0 {
		base.Evolution.MaxConcurrentSearches = override.Evolution.MaxConcurrentSearches
	}
	if override.Evolution.FailureCeiling != 0 {
		base.Evolution.FailureCeiling = override.Evolution.FailureCeiling
	}
	if override.Evolution.CooldownSeconds != 0 {
		base.Evolution.CooldownSeconds = override.Evolution.CooldownSeconds
	}
	if override.Evolution.BackoffCapSeconds != 0 {
		base.Evolution.BackoffCapSeconds = override.Evolution.BackoffCapSeconds
	}
	if override.Evolution.PriorityDecay != 0 {
		base.Evolution.PriorityDecay = override.Evolution.PriorityDecay
	}
	if override.Evolution.BoostStep != 0 {
		base.Evolution.BoostStep = override.Evolution.BoostStep
	}
	if override.Evolution.Enabled != nil {
		base.Evolution.Enabled = override.Evolution.Enabled
	}

	if override.Similarity.SubjectThreshold != 0 {
		base.Similarity.SubjectThreshold = override.Similarity.SubjectThreshold
	}
	if override.Similarity.DuplicateThreshold != 0 {
		base.Similarity.DuplicateThreshold = override.Similarity.DuplicateThreshold
	}

	if override.Sources.Google.APIKey != "" {
		base.Sources.Google.APIKey = override.Sources.Google.APIKey
	}
	if override.Sources.Google.EngineID != "" {
		base.Sources.Google.EngineID = override.Sources.Google.EngineID
	}
	if override.Sources.YouTube.APIKey != "" {
		base.Sources.YouTube.APIKey = override.Sources.YouTube.APIKey
	}
	if override.Sources.Reddit.UserAgent != "" {
		base.Sources.Reddit.UserAgent = override.Sources.Reddit.UserAgent
	}

	if len(override.Topics) > 0 {
		base.Topics = override.Topics
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Path: defaultDBPath},
		Evolution: EvolutionConfig{
			IntervalMinutes:       30,
			MaxConcurrentSearches: 5,
			FailureCeiling:        3,
			CooldownSeconds:       60,
			BackoffCapSeconds:     3600,
			PriorityDecay:         0.85,
			BoostStep:             1.0,
		},
		Similarity: SimilarityConfig{
			SubjectThreshold:   0.45,
			DuplicateThreshold: 0.9,
		},
		Sources: SourcesConfig{
			Reddit: RedditConfig{UserAgent: defaultUserAgent},
		},
		Topics: []TopicConfig{
			{
				Name:     "ai_technology",
				Keywords: []string{"artificial intelligence", "machine learning", "neural networks", "AI news"},
				Priority: 5,
				Category: string(domain.CategoryTechnical),
			},
			{
				Name:     "programming",
				Keywords: []string{"programming languages", "software development", "new frameworks"},
				Priority: 5,
				Category: string(domain.CategoryTechnical),
			},
			{
				Name:     "technology_trends",
				Keywords: []string{"technology trends", "tech news", "innovation"},
				Priority: 3,
				Category: string(domain.CategoryNews),
			},
			{
				Name:     "science_research",
				Keywords: []string{"scientific research", "breakthrough", "academic papers"},
				Priority: 3,
				Category: string(domain.CategoryScience),
			},
			{
				Name:     "mathematics",
				Keywords: []string{"mathematics", "algorithms", "computational math"},
				Priority: 2,
				Category: string(domain.CategoryScience),
			},
			{
				Name:     "current_events",
				Keywords: []string{"world news", "current events"},
				Priority: 1,
				Category: string(domain.CategoryNews),
			},
		},
	}
}
