package orchestrator

import (
	"context"
	"time"

	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
)

var bootRecoveryGrace = 3 * time.Second

// RecoverRunningJobs restores jobs a previous process incarnation left
// status=running when it crashed or was restarted: it waits for any
// orphaned workers to exit, reaps them, then starts a fresh driver so the
// job's batch loop continues without duplicating in-flight work. Intended
// to be called once at process start, in a background goroutine so it does
// not block server startup.
func RecoverRunningJobs(ctx context.Context, d *Driver) {
	span, ctx := tracing.StartTracerSpan(ctx, "orchestrator.RecoverRunningJobs")
	defer span.Finish()
	tracing.TagComponentOrchestrator(span)

	select {
	case <-ctx.Done():
		return
	case <-time.After(bootRecoveryGrace):
	}

	jobs, err := d.Deps.FolderJobs.ListRunningEnabled(ctx)
	if err != nil {
		d.Deps.Log.Warn("orchestrator: boot recovery could not list running jobs")
		return
	}

	for _, job := range jobs {
		if job.Status != models.FolderJobRunning {
			continue
		}
		jobID := job.ID
		go func() {
			if err := d.waitForOrphans(ctx, jobID); err != nil {
				d.Deps.Log.Warn("orchestrator: boot recovery orphan wait failed")
			}
			if err := d.RunFolderJob(ctx, jobID); err != nil {
				d.Deps.Log.Warn("orchestrator: boot recovery driver exited with error")
			}
		}()
	}
}
