package worker

import (
	"context"

	"github.com/cleanr/inboxengine/imap"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/internal/utils"
	"github.com/cleanr/inboxengine/manifest"
)

// runFolderBatch processes one batch for a folder_cleanup job: fetch the
// folder head, classify it, apply the results, and signal completion when
// the folder is empty. Grounded on original_source/worker.py's
// run_folder_batch.
func runFolderBatch(ctx context.Context, deps *Dependencies, rc *runContext, m *manifest.Manifest) error {
	span, ctx := tracing.StartTracerSpan(ctx, "worker.runFolderBatch")
	defer span.Finish()
	tracing.TagComponentWorker(span)

	email, appPassword, _, err := loadCredentials(ctx, deps)
	if err != nil {
		rc.emitError(ctx, "CONNECTION_FAILED", err.Error(), "Set email, app_password, and api_key in Settings.")
		return err
	}

	rc.emit(ctx, "status", map[string]any{"msg": "Connecting to IMAP…", "stage": "connect"})
	sess, err := dial(ctx, deps, email, appPassword)
	if err != nil {
		rc.emitError(ctx, "CONNECTION_FAILED", err.Error(), "")
		return err
	}
	defer sess.Close()

	rc.emit(ctx, "pipeline", map[string]any{"stage": "fetch", "status": "running"})
	batch, totalInFolder, err := fetchFolderBatch(ctx, sess, m)
	if err != nil {
		rc.emitError(ctx, "CONNECTION_FAILED", err.Error(), "")
		return err
	}
	rc.emit(ctx, "pipeline", map[string]any{
		"stage": "fetch", "status": "done", "count": len(batch), "total": totalInFolder,
	})

	if m.JobID != nil {
		if job, err := deps.FolderJobs.Get(ctx, *m.JobID); err == nil {
			job.TotalRemaining = totalInFolder
			_ = deps.FolderJobs.Update(ctx, job)
		}
	}

	if len(batch) == 0 {
		rc.finish(ctx, models.RunDone)
		rc.emit(ctx, "done", map[string]any{"empty": true, "total_in_folder": 0})
		return nil
	}

	rc.total = len(batch)
	rc.updateRun(ctx)

	results := classifyBatch(ctx, deps, rc, m, m.Folder, batch)

	byUID := messagesByUID(batch)
	applyResults(ctx, deps, rc, sess, m, m.Folder, results, byUID)

	rc.finish(ctx, models.RunDone)

	if m.JobID != nil {
		if job, err := deps.FolderJobs.Get(ctx, *m.JobID); err == nil {
			job.TotalProcessed += rc.kept + rc.filed + rc.trashed
			job.LastRun = utils.NowPtr()
			_ = deps.FolderJobs.Update(ctx, job)
		}
	}

	remaining := totalInFolder - len(batch)
	if remaining < 0 {
		remaining = 0
	}
	rc.emit(ctx, "done", map[string]any{
		"kept": rc.kept, "filed": rc.filed, "trashed": rc.trashed,
		"errors": rc.errs, "skipped": rc.skipped, "remaining": remaining,
	})
	return nil
}

// runInboxBatch processes one batch for an inbox_cleanup or
// scheduled_cleanup job. Grounded on original_source/worker.py's
// run_inbox_batch.
func runInboxBatch(ctx context.Context, deps *Dependencies, rc *runContext, m *manifest.Manifest) error {
	span, ctx := tracing.StartTracerSpan(ctx, "worker.runInboxBatch")
	defer span.Finish()
	tracing.TagComponentWorker(span)

	email, appPassword, _, err := loadCredentials(ctx, deps)
	if err != nil {
		rc.emitError(ctx, "CONNECTION_FAILED", err.Error(), "Set email, app_password, and api_key in Settings.")
		return err
	}

	rc.emit(ctx, "status", map[string]any{"msg": "Connecting to IMAP…", "stage": "connect"})
	sess, err := dial(ctx, deps, email, appPassword)
	if err != nil {
		rc.emitError(ctx, "CONNECTION_FAILED", err.Error(), "")
		return err
	}
	defer sess.Close()

	rc.emit(ctx, "pipeline", map[string]any{"stage": "fetch", "status": "running"})
	batch, err := fetchInboxBatch(ctx, sess, m)
	if err != nil {
		rc.emitError(ctx, "CONNECTION_FAILED", err.Error(), "")
		return err
	}
	rc.emit(ctx, "pipeline", map[string]any{"stage": "fetch", "status": "done", "count": len(batch)})

	if len(batch) == 0 {
		rc.finish(ctx, models.RunDone)
		rc.emit(ctx, "done", map[string]any{
			"total": 0, "kept": 0, "filed": 0, "trashed": 0, "errors": 0, "skipped": 0,
		})
		return nil
	}

	rc.total = len(batch)
	rc.updateRun(ctx)

	results := classifyBatch(ctx, deps, rc, m, m.Folder, batch)

	byUID := messagesByUID(batch)
	applyResults(ctx, deps, rc, sess, m, m.Folder, results, byUID)

	rc.finish(ctx, models.RunDone)

	rc.emit(ctx, "done", map[string]any{
		"total": len(batch), "kept": rc.kept, "filed": rc.filed,
		"trashed": rc.trashed, "errors": rc.errs, "skipped": rc.skipped,
	})
	return nil
}

func messagesByUID(batch []imap.Message) map[uint32]imap.Message {
	out := make(map[uint32]imap.Message, len(batch))
	for _, msg := range batch {
		out[msg.UID] = msg
	}
	return out
}
