// Package config loads every nested configuration struct the engine needs
// from the environment, grouped by concern the way each subsystem expects it.
package config

import (
	"github.com/cleanr/inboxengine/internal/database"
	"github.com/cleanr/inboxengine/internal/logger"
	"github.com/cleanr/inboxengine/internal/tracing"
)

// AppConfig holds process-wide settings for the server subcommand (the
// long-lived process hosting the orchestrator, scheduler, progress bus and
// thin REST/SSE façade).
type AppConfig struct {
	APIPort  string `env:"PORT" envDefault:"8090"`
	APIKey   string `env:"API_KEY"`
	PodName  string `env:"POD_NAME" envDefault:"inboxengine"`
	LocalDev bool   `env:"LOCAL_DEV" envDefault:"false"`
}

// DatabaseConfig is an alias kept at package scope so callers only import
// the top-level config package.
type DatabaseConfig = database.Config

// ClassifierConfig configures the LLM classifier's HTTP client.
type ClassifierConfig struct {
	Endpoint       string `env:"CLASSIFIER_ENDPOINT,required"`
	APIKey         string `env:"CLASSIFIER_API_KEY,required"`
	Model          string `env:"CLASSIFIER_MODEL" envDefault:"default"`
	TimeoutSeconds int    `env:"CLASSIFIER_TIMEOUT_SECONDS" envDefault:"60"`
	// Circuit breaker tuning: consecutive RATE_LIMIT/API_OVERLOADED failures
	// before the breaker opens, and how long it stays open.
	BreakerFailureThreshold uint32 `env:"CLASSIFIER_BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerCooldownSeconds  int    `env:"CLASSIFIER_BREAKER_COOLDOWN_SECONDS" envDefault:"30"`
}

// DefaultsConfig mirrors the Setting rows of the data model: process
// defaults, overridable per Schedule/FolderJob/manual run.
type DefaultsConfig struct {
	RateLimitPerHour  int  `env:"DEFAULT_RATE_LIMIT_PER_HOUR" envDefault:"200"`
	BatchDelaySeconds int  `env:"DEFAULT_BATCH_DELAY_SECONDS" envDefault:"5"`
	DefaultLimit      int  `env:"DEFAULT_BATCH_LIMIT" envDefault:"50"`
	ParallelBatches   int  `env:"DEFAULT_PARALLEL_BATCHES" envDefault:"3"`
	CacheTTLDays      int  `env:"DEFAULT_CACHE_TTL_DAYS" envDefault:"30"`
	InboxZeroMode     bool `env:"DEFAULT_INBOX_ZERO_MODE" envDefault:"false"`
}

// EventLogConfig points at the embedded append-only event log file.
type EventLogConfig struct {
	Path string `env:"EVENT_LOG_PATH" envDefault:"./data/events.db"`
}

// SchedulerConfig holds SCHEDULER_TICK_CRON. The scheduler does not read
// it: its tick is fixed at scheduler.tickSchedule.
type SchedulerConfig struct {
	TickExpr string `env:"SCHEDULER_TICK_CRON" envDefault:"@every 1m"`
}

// WorkerRuntimeConfig configures how the orchestrator and scheduler spawn
// worker processes. PollIntervalSecs is not read: the orchestrator polls a
// running worker at its own fixed 3s interval.
type WorkerRuntimeConfig struct {
	WorkerBinaryPath string `env:"WORKER_BINARY_PATH" envDefault:""`
	DBPath           string `env:"DB_PATH" envDefault:"./data/inboxengine.db"`
	PollIntervalSecs int    `env:"WORKER_POLL_INTERVAL_SECONDS" envDefault:"3"`
}

type Config struct {
	App        *AppConfig
	Logger     *logger.Config
	Tracing    *tracing.JaegerConfig
	Database   *DatabaseConfig
	Classifier *ClassifierConfig
	Defaults   *DefaultsConfig
	EventLog   *EventLogConfig
	Scheduler  *SchedulerConfig
	Runtime    *WorkerRuntimeConfig
}
