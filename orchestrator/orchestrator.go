package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/cleanr/inboxengine/internal/eventlog"
	"github.com/cleanr/inboxengine/internal/ierrors"
	"github.com/cleanr/inboxengine/internal/logger"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/internal/utils"
	"github.com/cleanr/inboxengine/interfaces"
	"github.com/cleanr/inboxengine/manifest"
)

const (
	defaultParallelBatches = 3
	defaultBatchDelaySecs  = 5
)

// Poll/tick intervals are vars, not consts, so tests can shrink them
// instead of sleeping through real 3s/1s waits.
var (
	containerPollInterval  = 3 * time.Second
	orphanWaitPollInterval = 3 * time.Second
	pauseCheckTickInterval = 1 * time.Second
)

// jobLocks is the orchestrator's try-lock registry, one *sync.Mutex per job
// id, lazily created. Mirrors the same keyed try-lock idiom internal/cron
// uses for its cron group name, but keyed here by job id since multiple
// folder jobs can have independent drivers running concurrently.
var jobLocks = struct {
	sync.Mutex
	locks map[uint]*sync.Mutex
}{locks: map[uint]*sync.Mutex{}}

func lockFor(jobID uint) *sync.Mutex {
	jobLocks.Lock()
	defer jobLocks.Unlock()
	m, ok := jobLocks.locks[jobID]
	if !ok {
		m = new(sync.Mutex)
		jobLocks.locks[jobID] = m
	}
	return m
}

// Dependencies is everything a Driver needs to run a folder job's batch
// loop, with Runtime as the only non-persistence collaborator.
type Dependencies struct {
	FolderJobs interfaces.FolderJobRepository
	Runs       interfaces.RunRepository
	Containers interfaces.WorkerContainerRepository
	Settings   interfaces.SettingRepository
	Events     *eventlog.Log
	Runtime    WorkerRuntime
	Log        logger.Logger
	DBPath     string
}

// Driver runs one job's batch loop end to end. A Driver is stateless beyond
// its Dependencies; RunFolderJob may be called repeatedly (e.g. once per
// resume) and each call takes the per-job try-lock independently.
type Driver struct {
	Deps Dependencies
}

func NewDriver(deps Dependencies) *Driver {
	return &Driver{Deps: deps}
}

func (d *Driver) emit(session string, jobID, runID *uint, event string, data any) {
	if _, err := d.Deps.Events.Append(session, event, jobID, runID, data); err != nil {
		d.Deps.Log.Warn("orchestrator: failed to append progress event")
	}
}

// RunFolderJob drives job jobID to completion, pause, or error. It returns
// ierrors.ErrJobAlreadyRunning immediately if another driver goroutine
// already holds this job's lock, matching the "at most one active driver
// per job" guarantee.
func (d *Driver) RunFolderJob(ctx context.Context, jobID uint) error {
	mu := lockFor(jobID)
	if !mu.TryLock() {
		return ierrors.ErrJobAlreadyRunning
	}
	defer mu.Unlock()

	span, ctx := tracing.StartTracerSpan(ctx, "orchestrator.RunFolderJob")
	defer span.Finish()
	tracing.TagComponentOrchestrator(span)
	tracing.TagJob(span, fmt.Sprint(jobID))

	job, err := d.Deps.FolderJobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	sessionID := utils.GenerateNanoIDWithPrefix(fmt.Sprintf("folderjob_%d", jobID), 6)
	job.SessionID = &sessionID
	job.Status = models.FolderJobRunning
	if err := d.Deps.FolderJobs.Update(ctx, job); err != nil {
		return err
	}
	tracing.TagSession(span, sessionID)

	parallel := settingInt(ctx, d.Deps.Settings, "parallel_batches", defaultParallelBatches)
	batchDelay := settingInt(ctx, d.Deps.Settings, "batch_delay_seconds", defaultBatchDelaySecs)

	for {
		if err := d.waitForOrphans(ctx, jobID); err != nil {
			d.Deps.Log.Warn("orchestrator: orphan wait failed")
		}

		job, err = d.Deps.FolderJobs.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if !job.Enabled {
			d.pause(ctx, job, sessionID)
			return nil
		}

		run := &models.Run{
			RunType:      models.RunTypeFolderJob,
			SourceFolder: job.Folder,
			JobID:        &jobID,
			SessionID:    sessionID,
			Status:       models.RunRunning,
		}
		if err := d.Deps.Runs.Create(ctx, run); err != nil {
			return err
		}

		m := manifest.NewFromFolderJob(job, run.ID, sessionID, parallel, d.Deps.DBPath)
		encoded, err := m.Encode()
		if err != nil {
			return err
		}
		containerName := fmt.Sprintf("inbox-worker-%d-%d", jobID, run.ID)

		handle, err := d.Deps.Runtime.Launch(ctx, LaunchSpec{
			Name:     containerName,
			Manifest: encoded,
			DBPath:   d.Deps.DBPath,
		})
		if err != nil {
			_ = d.Deps.Runs.Finish(ctx, run.ID, models.RunError)
			d.emit(sessionID, &jobID, &run.ID, "error", map[string]any{
				"code": "LAUNCH_FAILED", "message": err.Error(),
			})
			job.Status = models.FolderJobError
			_ = d.Deps.FolderJobs.Update(ctx, job)
			return errors.Wrap(ierrors.ErrWorkerLaunchFailed, err.Error())
		}

		wc := &models.WorkerContainer{
			JobID:         &jobID,
			RunID:         run.ID,
			ContainerID:   handle.ID(),
			ContainerName: containerName,
			Status:        models.WorkerContainerRunning,
		}
		if err := d.Deps.Containers.Create(ctx, wc); err != nil {
			d.Deps.Log.Warn("orchestrator: failed to record worker container")
		}

		exitCode, err := d.pollUntilExit(ctx, jobID, sessionID, handle)
		if err != nil {
			// pollUntilExit fails when the job was paused mid-poll
			// (errPaused), the context ended, or a poll failed; the driver
			// returns without marking anything and the worker is left running.
			return nil
		}
		_ = handle.Remove(ctx)

		if exitCode != 0 {
			_ = d.Deps.Containers.Finish(ctx, wc.ID, models.WorkerContainerError)
			_ = d.Deps.Runs.Finish(ctx, run.ID, models.RunError)
			job.Status = models.FolderJobError
			_ = d.Deps.FolderJobs.Update(ctx, job)
			d.emit(sessionID, &jobID, &run.ID, "error", map[string]any{
				"code": "FATAL", "message": fmt.Sprintf("worker exited with code %d", exitCode),
			})
			return errors.Errorf("orchestrator: worker exited %d", exitCode)
		}
		_ = d.Deps.Containers.Finish(ctx, wc.ID, models.WorkerContainerDone)

		finalRun, err := d.Deps.Runs.Get(ctx, run.ID)
		if err != nil {
			return err
		}
		if finalRun.Total == 0 {
			job.Status = models.FolderJobCompleted
			job.TotalRemaining = 0
			job.CompletedAt = utils.NowPtr()
			_ = d.Deps.FolderJobs.Update(ctx, job)
			d.emit(sessionID, &jobID, &run.ID, "done", map[string]any{"job_complete": true})
			return nil
		}

		if d.sleepInterruptible(ctx, jobID, batchDelay) {
			job.Status = models.FolderJobPaused
			_ = d.Deps.FolderJobs.Update(ctx, job)
			return nil
		}
	}
}

// pollUntilExit polls handle every 3s for exit while also re-reading the
// job row every tick; if enabled flips to false the worker is left running
// (pause is "no new batches", not "interrupt current batch") and a non-nil
// error is returned as a pause sentinel to unwind RunFolderJob's loop
// without treating it as a failure.
func (d *Driver) pollUntilExit(ctx context.Context, jobID uint, sessionID string, handle Handle) (int, error) {
	ticker := time.NewTicker(containerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
			exited, code, err := handle.Poll(ctx)
			if err != nil {
				return 0, err
			}
			if exited {
				return code, nil
			}
			cur, err := d.Deps.FolderJobs.Get(ctx, jobID)
			if err == nil && !cur.Enabled {
				d.pause(ctx, cur, sessionID)
				return 0, errPaused
			}
		}
	}
}

var errPaused = errors.New("orchestrator: job paused")

func (d *Driver) pause(ctx context.Context, job *models.FolderJob, sessionID string) {
	job.Status = models.FolderJobPaused
	if err := d.Deps.FolderJobs.Update(ctx, job); err != nil {
		d.Deps.Log.Warn("orchestrator: failed to persist paused status")
	}
	d.emit(sessionID, &job.ID, nil, "status", map[string]any{"msg": "paused", "stage": "paused"})
}

// sleepInterruptible waits up to seconds, checking the job's enabled flag
// every second, and returns true the moment it observes enabled=false.
func (d *Driver) sleepInterruptible(ctx context.Context, jobID uint, seconds int) bool {
	ticker := time.NewTicker(pauseCheckTickInterval)
	defer ticker.Stop()
	for i := 0; i < seconds; i++ {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			job, err := d.Deps.FolderJobs.Get(ctx, jobID)
			if err == nil && !job.Enabled {
				return true
			}
		}
	}
	return false
}

// waitForOrphans waits for any worker containers left running by a
// previous orchestrator incarnation for this job before a new batch is
// launched, so two worker processes never touch the same mailbox at once.
func (d *Driver) waitForOrphans(ctx context.Context, jobID uint) error {
	live, err := d.Deps.Containers.ListLiveByJob(ctx, jobID)
	if err != nil {
		return err
	}
	for _, wc := range live {
		handle, ok := d.Deps.Runtime.Attach(ctx, wc.ContainerID, wc.ContainerName)
		if !ok {
			_ = d.Deps.Containers.Finish(ctx, wc.ID, models.WorkerContainerDone)
			continue
		}
		d.Deps.Log.Info("orchestrator: waiting for orphan worker to exit")
		for {
			exited, _, err := handle.Poll(ctx)
			if err != nil || exited {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(orphanWaitPollInterval):
			}
		}
		_ = handle.Remove(ctx)
		_ = d.Deps.Containers.Finish(ctx, wc.ID, models.WorkerContainerDone)
	}
	return nil
}

func settingInt(ctx context.Context, settings interfaces.SettingRepository, name string, fallback int) int {
	raw, found, err := settings.Get(ctx, name)
	if err != nil || !found {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return fallback
	}
	return n
}
