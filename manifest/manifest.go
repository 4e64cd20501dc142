// Package manifest defines the Job Manifest: the single value passed across
// the process boundary to a worker, and the sanitiser that defends against
// prompt injection in user-supplied custom prompts.
package manifest

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/cleanr/inboxengine/internal/ierrors"
	"github.com/cleanr/inboxengine/internal/models"
)

type JobType string

const (
	JobTypeInboxCleanup     JobType = "inbox_cleanup"
	JobTypeScheduledCleanup JobType = "scheduled_cleanup"
	JobTypeFolderCleanup    JobType = "folder_cleanup"
)

func (t JobType) valid() bool {
	switch t {
	case JobTypeInboxCleanup, JobTypeScheduledCleanup, JobTypeFolderCleanup:
		return true
	}
	return false
}

// Manifest is immutable once built; every field a worker needs to run a
// batch without any further database lookups beyond credentials/settings.
type Manifest struct {
	// Identity
	JobType   JobType `json:"job_type"`
	RunID     uint    `json:"run_id"`
	SessionID string  `json:"session_id"`

	// Target
	Folder string `json:"folder"`
	JobID  *uint  `json:"job_id,omitempty"`

	// Volume
	BatchSize        int  `json:"batch_size"`
	OldestFirst      bool `json:"oldest_first"`
	StartFromDaysAgo *int `json:"start_from_days_ago,omitempty"`
	MaxEmails        *int `json:"max_emails,omitempty"`

	// Policy
	CustomPrompt          string `json:"custom_prompt"`
	DeleteMarketingUnread bool   `json:"delete_marketing_unread"`
	SkipFlagged           bool   `json:"skip_flagged"`
	AggressiveTrash       bool   `json:"aggressive_trash"`

	// Runtime
	ParallelBatches int    `json:"parallel_batches"`
	DBPath          string `json:"db_path"`
}

var injectionPatterns = []string{
	`</?system\s*>`,
	`\[/?INST\]`,
	`ignore\s+(all\s+)?previous\s+instructions?`,
	`disregard\s+(all\s+)?previous\s+instructions?`,
	`you\s+are\s+now\b`,
	`new\s+instructions?:`,
	`system\s+prompt:`,
	`</?\s*prompt\s*>`,
	`<\|[^|]*\|>`,
	`---+\s*system\s*---+`,
}

var (
	injectionRe   = regexp.MustCompile("(?i)(" + strings.Join(injectionPatterns, "|") + ")")
	whitespaceRe  = regexp.MustCompile(`\s+`)
	maxPromptSize = 500
)

// SanitiseCustomPrompt strips known prompt-injection patterns, collapses
// whitespace, and truncates. Applied both when a manifest is built and
// again when it is decoded, since decode is an untrusted-input boundary
// too (a compromised worker process re-encoding its own manifest, a
// hand-edited MANIFEST env var).
func SanitiseCustomPrompt(text string) string {
	if text == "" {
		return ""
	}
	cleaned := injectionRe.ReplaceAllString(text, "")
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > maxPromptSize {
		cleaned = cleaned[:maxPromptSize]
	}
	return cleaned
}

// Encode renders the manifest for the MANIFEST environment variable.
func (m *Manifest) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(err, "manifest: encode")
	}
	return string(b), nil
}

// Decode parses an encoded manifest, re-sanitising CustomPrompt and
// rejecting an unrecognised JobType.
func Decode(text string) (*Manifest, error) {
	if text == "" {
		return nil, ierrors.ErrManifestMissingJobType
	}
	var m Manifest
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, errors.Wrap(ierrors.ErrManifestInvalidJSON, err.Error())
	}
	if m.JobType == "" {
		return nil, ierrors.ErrManifestMissingJobType
	}
	if !m.JobType.valid() {
		return nil, errors.Wrapf(ierrors.ErrManifestUnknownJobType, "%q", m.JobType)
	}
	m.CustomPrompt = SanitiseCustomPrompt(m.CustomPrompt)
	return &m, nil
}

const defaultDBPath = "/data/inbox_cleaner.db"

// NewFromFolderJob builds a folder-drain manifest from a FolderJob row.
func NewFromFolderJob(job *models.FolderJob, runID uint, sessionID string, parallelBatches int, dbPath string) *Manifest {
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	jobID := job.ID
	return &Manifest{
		JobType:               JobTypeFolderCleanup,
		RunID:                 runID,
		SessionID:             sessionID,
		Folder:                job.Folder,
		JobID:                 &jobID,
		BatchSize:             job.BatchSize,
		OldestFirst:           job.OldestFirst,
		StartFromDaysAgo:      job.StartFromDaysAgo,
		MaxEmails:             job.MaxEmails,
		CustomPrompt:          SanitiseCustomPrompt(job.CustomPrompt),
		DeleteMarketingUnread: job.DeleteMarketingUnread,
		SkipFlagged:           job.SkipFlagged,
		AggressiveTrash:       job.AggressiveTrash,
		ParallelBatches:       parallelBatches,
		DBPath:                dbPath,
	}
}

// NewFromSchedule builds a manifest for a scheduled inbox-cleanup run.
func NewFromSchedule(sched *models.Schedule, runID uint, sessionID string, limit, parallelBatches int, dbPath string) *Manifest {
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	folder := sched.Folder
	if folder == "" {
		folder = "INBOX"
	}
	return &Manifest{
		JobType:               JobTypeScheduledCleanup,
		RunID:                 runID,
		SessionID:             sessionID,
		Folder:                folder,
		BatchSize:             limit,
		OldestFirst:           true,
		CustomPrompt:          SanitiseCustomPrompt(sched.CustomPrompt),
		DeleteMarketingUnread: sched.DeleteMarketingUnread,
		SkipFlagged:           sched.SkipFlagged,
		ParallelBatches:       parallelBatches,
		DBPath:                dbPath,
	}
}

// NewInboxCleanup builds a manifest for a direct, on-demand inbox cleanup
// run (not driven by a folder job or a schedule).
func NewInboxCleanup(runID uint, sessionID, folder string, limit, parallelBatches int, dbPath string, deleteMarketingUnread, skipFlagged bool, customPrompt string) *Manifest {
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	if folder == "" {
		folder = "INBOX"
	}
	return &Manifest{
		JobType:               JobTypeInboxCleanup,
		RunID:                 runID,
		SessionID:             sessionID,
		Folder:                folder,
		BatchSize:             limit,
		OldestFirst:           true,
		CustomPrompt:          SanitiseCustomPrompt(customPrompt),
		DeleteMarketingUnread: deleteMarketingUnread,
		SkipFlagged:           skipFlagged,
		ParallelBatches:       parallelBatches,
		DBPath:                dbPath,
	}
}
