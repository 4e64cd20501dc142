package scheduler

import (
	"context"
	"sync"

	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/orchestrator"
)

type fakeSchedules struct {
	mu   sync.Mutex
	rows map[uint]*models.Schedule
}

func newFakeSchedules(scheds ...*models.Schedule) *fakeSchedules {
	m := map[uint]*models.Schedule{}
	for _, s := range scheds {
		m[s.ID] = s
	}
	return &fakeSchedules{rows: m}
}

func (f *fakeSchedules) Create(ctx context.Context, s *models.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.rows[s.ID] = &cp
	return nil
}

func (f *fakeSchedules) List(ctx context.Context) ([]*models.Schedule, error) {
	return f.ListEnabled(ctx)
}

func (f *fakeSchedules) ListEnabled(ctx context.Context) ([]*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Schedule
	for _, s := range f.rows {
		if s.Enabled {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
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

type fakeCredentials struct {
	values map[string]string
}

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

type fakeHandle struct{ id, name string }

func (h *fakeHandle) ID() string   { return h.id }
func (h *fakeHandle) Name() string { return h.name }
func (h *fakeHandle) Poll(ctx context.Context) (bool, int, error) {
	return true, 0, nil
}
func (h *fakeHandle) Remove(ctx context.Context) error { return nil }

type fakeRuntime struct {
	mu          sync.Mutex
	launchErr   error
	launchCount int
	launched    []orchestrator.LaunchSpec
}

func (r *fakeRuntime) Launch(ctx context.Context, spec orchestrator.LaunchSpec) (orchestrator.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launchCount++
	r.launched = append(r.launched, spec)
	if r.launchErr != nil {
		return nil, r.launchErr
	}
	return &fakeHandle{id: "pid-1", name: spec.Name}, nil
}

func (r *fakeRuntime) Attach(ctx context.Context, id, name string) (orchestrator.Handle, bool) {
	return nil, false
}

type notFoundErr string

func (e notFoundErr) Error() string { return string(e) }

var errNotFound = notFoundErr("not found")
