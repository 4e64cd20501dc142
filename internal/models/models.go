// Package models holds the gorm row types backing the relational half of
// the persistence abstraction (see internal/eventlog for the append-only
// event-log half). Each type corresponds 1:1 to a data-model entity.
package models

import "time"

// Credential is an opaque secret keyed by name ("email", "app_password",
// "api_key"). Create/update-only; looked up read-only by workers.
type Credential struct {
	ID        uint `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// Setting is a string-valued tunable, looked up by name with a typed default
// when absent (see interfaces.SettingRepository).
type Setting struct {
	Name      string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

// Schedule is a recurring trigger. Exactly one of IntervalHours/
// IntervalMinutes is authoritative (see EffectiveInterval).
type Schedule struct {
	ID                    uint `gorm:"primaryKey"`
	Name                  string
	Enabled               bool
	IntervalHours         *int
	IntervalMinutes       *int
	LimitPerRun           int
	Folder                string
	CustomPrompt          string
	DeleteMarketingUnread bool
	SkipFlagged           bool
	NextRun               *time.Time
	LastRun               *time.Time
	CreatedAt             time.Time
}

// EffectiveInterval returns the authoritative recurrence interval, preferring
// minutes when both happen to be set (mirrors the original scheduler's
// defensive "minutes if present else hours" precedence).
func (s *Schedule) EffectiveInterval() time.Duration {
	if s.IntervalMinutes != nil {
		return time.Duration(*s.IntervalMinutes) * time.Minute
	}
	if s.IntervalHours != nil {
		return time.Duration(*s.IntervalHours) * time.Hour
	}
	return 0
}

type FolderJobStatus string

const (
	FolderJobIdle      FolderJobStatus = "idle"
	FolderJobRunning   FolderJobStatus = "running"
	FolderJobPaused    FolderJobStatus = "paused"
	FolderJobCompleted FolderJobStatus = "completed"
	FolderJobError     FolderJobStatus = "error"
)

// FolderJob is a long-running drain task. Invariant: Status == Running
// implies Enabled; Enabled == false is the cooperative pause signal.
type FolderJob struct {
	ID                    uint `gorm:"primaryKey"`
	Name                  string
	Folder                string
	Enabled               bool
	Status                FolderJobStatus `gorm:"index"`
	BatchSize             int
	RateLimitPerHour      int
	OldestFirst           bool
	StartFromDaysAgo      *int
	MaxEmails             *int
	CustomPrompt          string
	DeleteMarketingUnread bool
	SkipFlagged           bool
	AggressiveTrash       bool
	TotalProcessed        int
	TotalRemaining        int
	SessionID             *string
	LastRun               *time.Time
	CompletedAt           *time.Time
	CreatedAt             time.Time
}

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunError   RunStatus = "error"
)

type RunType string

const (
	RunTypeManual    RunType = "manual"
	RunTypeScheduled RunType = "scheduled"
	RunTypeFolderJob RunType = "folder_job"
)

// Run is one batch execution. Counters are monotonically increasing during
// the run; a terminal Status sets FinishedAt.
type Run struct {
	ID           uint `gorm:"primaryKey"`
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       RunStatus `gorm:"index"`
	RunType      RunType
	SourceFolder string
	JobID        *uint `gorm:"index"`
	SessionID    string `gorm:"index"`
	Total        int
	Kept         int
	Filed        int
	Trashed      int
	Errors       int
	Skipped      int
}

// ActionKind is the closed taxonomy of per-message outcomes.
type ActionKind string

const (
	ActionKeep        ActionKind = "keep"
	ActionInbox       ActionKind = "inbox"
	ActionReceipt     ActionKind = "receipt"
	ActionTravel      ActionKind = "travel"
	ActionFinance     ActionKind = "finance"
	ActionMedical     ActionKind = "medical"
	ActionRecruitment ActionKind = "recruitment"
	ActionFile        ActionKind = "file"
	ActionMarketing   ActionKind = "marketing"
	ActionEphemeral   ActionKind = "ephemeral"
	ActionSpam        ActionKind = "spam"
	ActionSkip        ActionKind = "skip"
)

// FileActions is the bucket of classifications that are moved to a
// canonical destination folder rather than INBOX or trash.
var FileActions = map[ActionKind]bool{
	ActionReceipt:     true,
	ActionTravel:      true,
	ActionFinance:     true,
	ActionMedical:     true,
	ActionRecruitment: true,
	ActionFile:        true,
}

// TrashActions is the bucket of classifications that are marked \Deleted
// and expunged.
var TrashActions = map[ActionKind]bool{
	ActionMarketing: true,
	ActionEphemeral: true,
	ActionSpam:      true,
}

// Action is one append-only IMAP outcome row.
type Action struct {
	ID        uint `gorm:"primaryKey"`
	RunID     uint `gorm:"index;not null"`
	UID       uint32
	From      string
	Subject   string
	Action    ActionKind
	Folder    string
	Reason    string
	CreatedAt time.Time
}

// CacheEntry is a classification memo keyed by fingerprint hash (see
// package fingerprint).
type CacheEntry struct {
	Hash         string `gorm:"primaryKey"`
	Action       ActionKind
	Folder       string
	Reason       string
	ClassifiedAt time.Time
}

type WorkerContainerStatus string

const (
	WorkerContainerStarting WorkerContainerStatus = "starting"
	WorkerContainerRunning  WorkerContainerStatus = "running"
	WorkerContainerDone     WorkerContainerStatus = "done"
	WorkerContainerError    WorkerContainerStatus = "error"
)

// WorkerContainer is a supervision handle for one spawned worker, whether
// backed by a sibling OS process or a sibling container.
type WorkerContainer struct {
	ID            uint `gorm:"primaryKey"`
	JobID         *uint `gorm:"index"`
	RunID         uint  `gorm:"index"`
	ContainerID   string
	ContainerName string
	Status        WorkerContainerStatus
	CreatedAt     time.Time
	FinishedAt    *time.Time
}

// AllModels is the migration list consumed by repository.MigrateDB.
func AllModels() []any {
	return []any{
		&Credential{},
		&Setting{},
		&Schedule{},
		&FolderJob{},
		&Run{},
		&Action{},
		&CacheEntry{},
		&WorkerContainer{},
	}
}
