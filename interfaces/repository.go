// Package interfaces defines the ports every higher-level component
// (orchestrator, scheduler, worker pipeline) programs against, so they can
// be exercised in tests against fakes instead of a live database, IMAP
// server or LLM endpoint.
package interfaces

import (
	"context"
	"time"

	goimap "github.com/emersion/go-imap"

	"github.com/cleanr/inboxengine/imap"
	"github.com/cleanr/inboxengine/internal/models"
)

type CredentialRepository interface {
	Get(ctx context.Context, name string) (string, error)
	Put(ctx context.Context, name, value string) error
}

type SettingRepository interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Put(ctx context.Context, name, value string) error
}

type ScheduleRepository interface {
	Create(ctx context.Context, s *models.Schedule) error
	List(ctx context.Context) ([]*models.Schedule, error)
	ListEnabled(ctx context.Context) ([]*models.Schedule, error)
	Get(ctx context.Context, id uint) (*models.Schedule, error)
	Update(ctx context.Context, s *models.Schedule) error
}

type FolderJobRepository interface {
	Create(ctx context.Context, j *models.FolderJob) error
	Get(ctx context.Context, id uint) (*models.FolderJob, error)
	List(ctx context.Context) ([]*models.FolderJob, error)
	ListRunningEnabled(ctx context.Context) ([]*models.FolderJob, error)
	Update(ctx context.Context, j *models.FolderJob) error
}

type RunRepository interface {
	Create(ctx context.Context, r *models.Run) error
	Get(ctx context.Context, id uint) (*models.Run, error)
	UpdateCounters(ctx context.Context, r *models.Run) error
	Finish(ctx context.Context, id uint, status models.RunStatus) error
}

type ActionRepository interface {
	Append(ctx context.Context, a *models.Action) error
}

type CacheRepository interface {
	Get(ctx context.Context, hash string, ttl time.Duration) (*models.CacheEntry, bool, error)
	Put(ctx context.Context, entry *models.CacheEntry) error
}

// MailboxSession is the narrow view of imap.Session the worker pipeline's
// fetch and apply stages need, so they can be driven in tests against a
// fake mailbox instead of a live IMAP server.
type MailboxSession interface {
	SelectFolder(ctx context.Context, folder string, readOnly bool) (*goimap.MailboxStatus, error)
	Search(ctx context.Context, criteria imap.SearchCriteria) ([]uint32, error)
	FetchHeaders(ctx context.Context, uids []uint32) ([]imap.Message, error)
	Move(ctx context.Context, uid uint32, dest string) error
	Delete(ctx context.Context, uid uint32) error
	EnsureFolder(ctx context.Context, folder string) error
	Close() error
}

type WorkerContainerRepository interface {
	Create(ctx context.Context, wc *models.WorkerContainer) error
	Finish(ctx context.Context, id uint, status models.WorkerContainerStatus) error
	ListLiveByJob(ctx context.Context, jobID uint) ([]*models.WorkerContainer, error)
}
