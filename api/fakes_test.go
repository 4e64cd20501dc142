package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cleanr/inboxengine/internal/logger"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/orchestrator"
)

type discardLogger struct{}

func (discardLogger) Debug(msg string, fields ...zap.Field) {}
func (discardLogger) Info(msg string, fields ...zap.Field)  {}
func (discardLogger) Warn(msg string, fields ...zap.Field)  {}
func (discardLogger) Error(msg string, fields ...zap.Field) {}
func (discardLogger) With(fields ...zap.Field) logger.Logger {
	return discardLogger{}
}
func (discardLogger) Logger() *zap.Logger { return zap.NewNop() }

type fakeFolderJobs struct {
	mu     sync.Mutex
	nextID uint
	jobs   map[uint]*models.FolderJob
}

func newFakeFolderJobs() *fakeFolderJobs {
	return &fakeFolderJobs{jobs: map[uint]*models.FolderJob{}}
}

func (f *fakeFolderJobs) Create(ctx context.Context, j *models.FolderJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	j.ID = f.nextID
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeFolderJobs) List(ctx context.Context) ([]*models.FolderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.FolderJob
	for _, j := range f.jobs {
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeFolderJobs) Get(ctx context.Context, id uint) (*models.FolderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeFolderJobs) ListRunningEnabled(ctx context.Context) ([]*models.FolderJob, error) {
	return nil, nil
}

func (f *fakeFolderJobs) Update(ctx context.Context, j *models.FolderJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

type fakeSchedules struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.Schedule
}

func newFakeSchedules() *fakeSchedules {
	return &fakeSchedules{rows: map[uint]*models.Schedule{}}
}

func (f *fakeSchedules) Create(ctx context.Context, s *models.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	cp := *s
	f.rows[s.ID] = &cp
	return nil
}

func (f *fakeSchedules) List(ctx context.Context) ([]*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Schedule
	for _, s := range f.rows {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeSchedules) ListEnabled(ctx context.Context) ([]*models.Schedule, error) {
	return f.List(ctx)
}

func (f *fakeSchedules) Get(ctx context.Context, id uint) (*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSchedules) Update(ctx context.Context, s *models.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.rows[s.ID] = &cp
	return nil
}

type fakeRuns struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.Run
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{rows: map[uint]*models.Run{}}
}

func (f *fakeRuns) Create(ctx context.Context, r *models.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = f.nextID
	cp := *r
	f.rows[r.ID] = &cp
	return nil
}

func (f *fakeRuns) Get(ctx context.Context, id uint) (*models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRuns) UpdateCounters(ctx context.Context, r *models.Run) error { return nil }

func (f *fakeRuns) Finish(ctx context.Context, id uint, status models.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return errNotFound
	}
	row.Status = status
	return nil
}

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (f *fakeSettings) Get(ctx context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[name]
	return v, ok, nil
}

func (f *fakeSettings) Put(ctx context.Context, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
	return nil
}

type fakeCredentials struct{ values map[string]string }

func (f *fakeCredentials) Get(ctx context.Context, name string) (string, error) {
	v, ok := f.values[name]
	if !ok {
		return "", errNotFound
	}
	return v, nil
}

func (f *fakeCredentials) Put(ctx context.Context, name, value string) error {
	f.values[name] = value
	return nil
}

type fakeActions struct {
	mu   sync.Mutex
	rows []models.Action
}

func (f *fakeActions) Append(ctx context.Context, a *models.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *a)
	return nil
}

type fakeCache struct{}

func (fakeCache) Get(ctx context.Context, hash string, ttl time.Duration) (*models.CacheEntry, bool, error) {
	return nil, false, nil
}

func (fakeCache) Put(ctx context.Context, entry *models.CacheEntry) error { return nil }

type fakeContainers struct{}

func (fakeContainers) Create(ctx context.Context, wc *models.WorkerContainer) error { return nil }
func (fakeContainers) Finish(ctx context.Context, id uint, status models.WorkerContainerStatus) error {
	return nil
}
func (fakeContainers) ListLiveByJob(ctx context.Context, jobID uint) ([]*models.WorkerContainer, error) {
	return nil, nil
}

// fakeRuntime always fails to launch, so a folder job's driver goroutine
// returns immediately in tests instead of blocking on a real subprocess.
type fakeRuntime struct{}

func (fakeRuntime) Launch(ctx context.Context, spec orchestrator.LaunchSpec) (orchestrator.Handle, error) {
	return nil, errLaunchFailed
}

func (fakeRuntime) Attach(ctx context.Context, id, name string) (orchestrator.Handle, bool) {
	return nil, false
}

type notFoundErr string

func (e notFoundErr) Error() string { return string(e) }

var errNotFound = notFoundErr("not found")

type launchFailedErr string

func (e launchFailedErr) Error() string { return string(e) }

var errLaunchFailed = launchFailedErr("launch failed")
