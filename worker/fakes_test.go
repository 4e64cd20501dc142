package worker

import (
	"context"
	"time"

	goimap "github.com/emersion/go-imap"
	"go.uber.org/zap"

	"github.com/cleanr/inboxengine/imap"
	"github.com/cleanr/inboxengine/internal/logger"
	"github.com/cleanr/inboxengine/internal/models"
)

// fakeMailbox is an in-memory stand-in for interfaces.MailboxSession so the
// apply stage can be driven without a live IMAP server.
type fakeMailbox struct {
	messages     map[uint32]imap.Message
	moved        map[uint32]string
	deleted      map[uint32]bool
	ensured      []string
	moveErr      error
	ensureErr    error
	selectedOnly string
}

func newFakeMailbox(messages []imap.Message) *fakeMailbox {
	byUID := make(map[uint32]imap.Message, len(messages))
	for _, m := range messages {
		byUID[m.UID] = m
	}
	return &fakeMailbox{messages: byUID, moved: map[uint32]string{}, deleted: map[uint32]bool{}}
}

func (f *fakeMailbox) SelectFolder(ctx context.Context, folder string, readOnly bool) (*goimap.MailboxStatus, error) {
	f.selectedOnly = folder
	return &goimap.MailboxStatus{}, nil
}

func (f *fakeMailbox) Search(ctx context.Context, criteria imap.SearchCriteria) ([]uint32, error) {
	uids := make([]uint32, 0, len(f.messages))
	for uid := range f.messages {
		uids = append(uids, uid)
	}
	return uids, nil
}

func (f *fakeMailbox) FetchHeaders(ctx context.Context, uids []uint32) ([]imap.Message, error) {
	out := make([]imap.Message, 0, len(uids))
	for _, uid := range uids {
		if m, ok := f.messages[uid]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMailbox) Move(ctx context.Context, uid uint32, dest string) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moved[uid] = dest
	return nil
}

func (f *fakeMailbox) Delete(ctx context.Context, uid uint32) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	f.deleted[uid] = true
	return nil
}

func (f *fakeMailbox) EnsureFolder(ctx context.Context, folder string) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensured = append(f.ensured, folder)
	return nil
}

func (f *fakeMailbox) Close() error { return nil }

type fakeCredentials struct{ values map[string]string }

func (f *fakeCredentials) Get(ctx context.Context, name string) (string, error) {
	return f.values[name], nil
}
func (f *fakeCredentials) Put(ctx context.Context, name, value string) error {
	f.values[name] = value
	return nil
}

type fakeSettings struct{ values map[string]string }

func (f *fakeSettings) Get(ctx context.Context, name string) (string, bool, error) {
	v, ok := f.values[name]
	return v, ok, nil
}
func (f *fakeSettings) Put(ctx context.Context, name, value string) error {
	f.values[name] = value
	return nil
}

type fakeRuns struct {
	updates []models.Run
	status  models.RunStatus
}

func (f *fakeRuns) Create(ctx context.Context, r *models.Run) error { return nil }
func (f *fakeRuns) Get(ctx context.Context, id uint) (*models.Run, error) {
	return &models.Run{ID: id}, nil
}
func (f *fakeRuns) UpdateCounters(ctx context.Context, r *models.Run) error {
	f.updates = append(f.updates, *r)
	return nil
}
func (f *fakeRuns) Finish(ctx context.Context, id uint, status models.RunStatus) error {
	f.status = status
	return nil
}

type fakeActions struct{ rows []models.Action }

func (f *fakeActions) Append(ctx context.Context, a *models.Action) error {
	f.rows = append(f.rows, *a)
	return nil
}

type fakeCache struct{ entries map[string]*models.CacheEntry }

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]*models.CacheEntry{}} }

func (f *fakeCache) Get(ctx context.Context, hash string, ttl time.Duration) (*models.CacheEntry, bool, error) {
	e, ok := f.entries[hash]
	return e, ok, nil
}
func (f *fakeCache) Put(ctx context.Context, entry *models.CacheEntry) error {
	f.entries[entry.Hash] = entry
	return nil
}

type fakeFolderJobs struct{ jobs map[uint]*models.FolderJob }

func (f *fakeFolderJobs) Create(ctx context.Context, j *models.FolderJob) error {
	f.jobs[j.ID] = j
	return nil
}
func (f *fakeFolderJobs) List(ctx context.Context) ([]*models.FolderJob, error) {
	var out []*models.FolderJob
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}
func (f *fakeFolderJobs) Get(ctx context.Context, id uint) (*models.FolderJob, error) {
	return f.jobs[id], nil
}
func (f *fakeFolderJobs) ListRunningEnabled(ctx context.Context) ([]*models.FolderJob, error) {
	return nil, nil
}
func (f *fakeFolderJobs) Update(ctx context.Context, j *models.FolderJob) error {
	f.jobs[j.ID] = j
	return nil
}

type discardLogger struct{}

func (discardLogger) Debug(msg string, fields ...zap.Field)   {}
func (discardLogger) Info(msg string, fields ...zap.Field)    {}
func (discardLogger) Warn(msg string, fields ...zap.Field)    {}
func (discardLogger) Error(msg string, fields ...zap.Field)   {}
func (discardLogger) With(fields ...zap.Field) logger.Logger  { return discardLogger{} }
func (discardLogger) Logger() *zap.Logger                     { return zap.NewNop() }
