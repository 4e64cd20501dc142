package orchestrator

import (
	"context"
	"sync"

	"github.com/cleanr/inboxengine/internal/models"
)

type fakeFolderJobs struct {
	mu   sync.Mutex
	jobs map[uint]*models.FolderJob
}

func newFakeFolderJobs(jobs ...*models.FolderJob) *fakeFolderJobs {
	m := map[uint]*models.FolderJob{}
	for _, j := range jobs {
		m[j.ID] = j
	}
	return &fakeFolderJobs{jobs: m}
}

func (f *fakeFolderJobs) Create(ctx context.Context, j *models.FolderJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.FolderJob
	for _, j := range f.jobs {
		if j.Enabled {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeFolderJobs) Update(ctx context.Context, j *models.FolderJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

type fakeRuns struct {
	mu      sync.Mutex
	nextID  uint
	rows    map[uint]*models.Run
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

func (f *fakeRuns) UpdateCounters(ctx context.Context, r *models.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[r.ID]
	if !ok {
		return errNotFound
	}
	row.Total, row.Kept, row.Filed, row.Trashed, row.Errors, row.Skipped =
		r.Total, r.Kept, r.Filed, r.Trashed, r.Errors, r.Skipped
	return nil
}

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

// setTotal lets a test simulate the worker having reported its fetched
// count, as if RunWorker had called UpdateCounters mid-batch.
func (f *fakeRuns) setTotal(id uint, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		row.Total = total
	}
}

type fakeContainers struct {
	mu       sync.Mutex
	nextID   uint
	rows     map[uint]*models.WorkerContainer
}

func newFakeContainers() *fakeContainers {
	return &fakeContainers{rows: map[uint]*models.WorkerContainer{}}
}

func (f *fakeContainers) Create(ctx context.Context, wc *models.WorkerContainer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	wc.ID = f.nextID
	cp := *wc
	f.rows[wc.ID] = &cp
	return nil
}

func (f *fakeContainers) Finish(ctx context.Context, id uint, status models.WorkerContainerStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return errNotFound
	}
	row.Status = status
	return nil
}

func (f *fakeContainers) ListLiveByJob(ctx context.Context, jobID uint) ([]*models.WorkerContainer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WorkerContainer
	for _, wc := range f.rows {
		if wc.JobID != nil && *wc.JobID == jobID &&
			(wc.Status == models.WorkerContainerStarting || wc.Status == models.WorkerContainerRunning) {
			cp := *wc
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) Get(ctx context.Context, name string) (string, bool, error) {
	v, ok := f.values[name]
	return v, ok, nil
}

func (f *fakeSettings) Put(ctx context.Context, name, value string) error {
	f.values[name] = value
	return nil
}

type fakeHandle struct {
	id, name string
	exitCode int
	exited   bool
	polls    int
	exitOn   int
}

func (h *fakeHandle) ID() string   { return h.id }
func (h *fakeHandle) Name() string { return h.name }

func (h *fakeHandle) Poll(ctx context.Context) (bool, int, error) {
	h.polls++
	if h.polls >= h.exitOn {
		h.exited = true
	}
	return h.exited, h.exitCode, nil
}

func (h *fakeHandle) Remove(ctx context.Context) error { return nil }

type fakeRuntime struct {
	mu            sync.Mutex
	launchErr     error
	handles       []*fakeHandle
	launchCount   int
	attachable    map[string]*fakeHandle
	nextExitCode  int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{attachable: map[string]*fakeHandle{}}
}

func (r *fakeRuntime) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launchCount++
	if r.launchErr != nil {
		return nil, r.launchErr
	}
	h := &fakeHandle{id: "pid-1", name: spec.Name, exitOn: 1, exitCode: r.nextExitCode}
	r.handles = append(r.handles, h)
	return h, nil
}

func (r *fakeRuntime) Attach(ctx context.Context, id, name string) (Handle, bool) {
	h, ok := r.attachable[id]
	return h, ok
}

var errNotFound = errNotFoundErr("not found")

type errNotFoundErr string

func (e errNotFoundErr) Error() string { return string(e) }
