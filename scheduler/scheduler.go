// Package scheduler drives recurring cleanup runs: every tick it reads
// enabled schedules, fires any that are due, and advances next_run. Unlike
// the orchestrator it has no batch loop of its own — each firing launches
// exactly one worker and moves on.
//
// Grounded on original_source/core/scheduler.py's scheduler_loop /
// _fire_schedule, wired onto the robfig/cron usage already established in
// internal/cron/cron.go rather than a hand-rolled ticker.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/cleanr/inboxengine/internal/logger"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/internal/utils"
	"github.com/cleanr/inboxengine/interfaces"
	"github.com/cleanr/inboxengine/manifest"
	"github.com/cleanr/inboxengine/orchestrator"
)

const (
	tickSchedule           = "@every 60s"
	defaultParallelBatches = 3
)

// Dependencies is everything one scheduler tick needs.
type Dependencies struct {
	Schedules   interfaces.ScheduleRepository
	Runs        interfaces.RunRepository
	Credentials interfaces.CredentialRepository
	Settings    interfaces.SettingRepository
	Runtime     orchestrator.WorkerRuntime
	Log         logger.Logger
	DBPath      string
}

// Scheduler wraps a robfig/cron instance that calls Tick once a minute.
type Scheduler struct {
	deps Dependencies
	cron *cronv3.Cron

	mu        sync.Mutex
	lastRunID map[uint]uint
}

func New(deps Dependencies) *Scheduler {
	c := cronv3.New(cronv3.WithChain(
		cronv3.Recover(cronv3.DefaultLogger),
	))
	return &Scheduler{deps: deps, cron: c, lastRunID: map[uint]uint{}}
}

// Start registers the 60s tick and starts the underlying cron runner.
// Deliberately does not chain cronv3.SkipIfStillRunning: overlapping
// firings are allowed to fire again rather than being silently skipped —
// Tick logs a warning for the observable case instead.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(tickSchedule, func() {
		defer tracing.RecoverAndLogToJaeger(s.deps.Log)
		s.Tick(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Tick is one pass over all enabled schedules: initialise a missing
// next_run, fire anything due, and advance next_run/last_run. Exported so
// it can be driven directly in tests without waiting on the cron clock.
func (s *Scheduler) Tick(ctx context.Context) {
	span, ctx := tracing.StartTracerSpan(ctx, "scheduler.Tick")
	defer span.Finish()
	tracing.TagComponentScheduler(span)

	scheds, err := s.deps.Schedules.ListEnabled(ctx)
	if err != nil {
		s.deps.Log.Warn("scheduler: could not list enabled schedules")
		return
	}

	now := utils.Now()
	for _, sched := range scheds {
		if sched.NextRun == nil {
			next := now.Add(sched.EffectiveInterval())
			sched.NextRun = &next
			if err := s.deps.Schedules.Update(ctx, sched); err != nil {
				s.deps.Log.Warn("scheduler: failed to initialise next_run")
			}
			continue
		}

		if sched.NextRun.After(now) {
			continue
		}

		if s.isStillRunning(ctx, sched.ID) {
			s.deps.Log.Warn(fmt.Sprintf("scheduler: schedule %d firing again while previous run is still active", sched.ID))
		}

		s.fire(ctx, sched)

		next := now.Add(sched.EffectiveInterval())
		lastRun := now
		sched.NextRun = &next
		sched.LastRun = &lastRun
		if err := s.deps.Schedules.Update(ctx, sched); err != nil {
			s.deps.Log.Warn("scheduler: failed to advance next_run")
		}
	}
}

// isStillRunning is a best-effort, process-local check (the run this
// scheduler last launched for the schedule) used only to decide whether to
// log the overlap warning; it never gates firing.
func (s *Scheduler) isStillRunning(ctx context.Context, scheduleID uint) bool {
	s.mu.Lock()
	runID, ok := s.lastRunID[scheduleID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	run, err := s.deps.Runs.Get(ctx, runID)
	if err != nil {
		return false
	}
	return run.Status == models.RunRunning
}

// fire launches exactly one worker for a due schedule. A missing
// credential or a launch failure is logged and the run (if created) is
// marked error; scheduling continues to the next schedule either way.
func (s *Scheduler) fire(ctx context.Context, sched *models.Schedule) {
	if _, err := s.deps.Credentials.Get(ctx, "email"); err != nil {
		s.deps.Log.Warn(fmt.Sprintf("scheduler: skipping schedule %d — credentials missing", sched.ID))
		return
	}
	if _, err := s.deps.Credentials.Get(ctx, "app_password"); err != nil {
		s.deps.Log.Warn(fmt.Sprintf("scheduler: skipping schedule %d — credentials missing", sched.ID))
		return
	}
	if _, err := s.deps.Credentials.Get(ctx, "api_key"); err != nil {
		s.deps.Log.Warn(fmt.Sprintf("scheduler: skipping schedule %d — credentials missing", sched.ID))
		return
	}

	folder := sched.Folder
	if folder == "" {
		folder = "INBOX"
	}
	run := &models.Run{
		RunType:      models.RunTypeScheduled,
		SourceFolder: folder,
		Status:       models.RunRunning,
	}
	if err := s.deps.Runs.Create(ctx, run); err != nil {
		s.deps.Log.Warn(fmt.Sprintf("scheduler: failed to create run for schedule %d", sched.ID))
		return
	}

	sessionID := utils.GenerateNanoIDWithPrefix(fmt.Sprintf("sched_%d", run.ID), 6)

	parallel := settingInt(ctx, s.deps.Settings, "parallel_batches", defaultParallelBatches)
	m := manifest.NewFromSchedule(sched, run.ID, sessionID, sched.LimitPerRun, parallel, s.deps.DBPath)
	encoded, err := m.Encode()
	if err != nil {
		_ = s.deps.Runs.Finish(ctx, run.ID, models.RunError)
		s.deps.Log.Warn(fmt.Sprintf("scheduler: failed to encode manifest for schedule %d", sched.ID))
		return
	}

	containerName := fmt.Sprintf("inbox-sched-%d-%d", sched.ID, run.ID)
	s.deps.Log.Info(fmt.Sprintf("scheduler: firing schedule %d (%s) run=%d folder=%s", sched.ID, sched.Name, run.ID, folder))

	if _, err := s.deps.Runtime.Launch(ctx, orchestrator.LaunchSpec{
		Name:     containerName,
		Manifest: encoded,
		DBPath:   s.deps.DBPath,
	}); err != nil {
		_ = s.deps.Runs.Finish(ctx, run.ID, models.RunError)
		s.deps.Log.Warn(fmt.Sprintf("scheduler: failed to launch worker for schedule %d: %v", sched.ID, err))
		return
	}

	s.mu.Lock()
	s.lastRunID[sched.ID] = run.ID
	s.mu.Unlock()
}

func settingInt(ctx context.Context, settings interfaces.SettingRepository, name string, fallback int) int {
	raw, found, err := settings.Get(ctx, name)
	if err != nil || !found {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
