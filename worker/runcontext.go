package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/manifest"
)

// runContext binds the bound (emit, log_action, update_run) triple from
// original_source/worker.py's _make_helpers to one run, plus the running
// counters the apply stage mutates. The apply stage is strictly sequential
// so counters need no synchronisation; emit is also called from the
// classify stage's concurrent batches, but every call goes straight
// through to eventlog.Log.Append, which is already safe for concurrent use.
type runContext struct {
	deps  *Dependencies
	m     *manifest.Manifest
	total int

	kept, filed, trashed, errs, skipped int
}

func newRunContext(deps *Dependencies, m *manifest.Manifest) *runContext {
	return &runContext{deps: deps, m: m}
}

func (rc *runContext) emit(ctx context.Context, event string, data any) {
	if _, err := rc.deps.Events.Append(rc.m.SessionID, event, rc.m.JobID, &rc.m.RunID, data); err != nil {
		rc.deps.Log.Warn("failed to append progress event", zap.Error(err))
	}
	if rc.deps.Progress != nil {
		rc.deps.Progress.Emit(rc.m.SessionID, event, data)
	}
}

func (rc *runContext) emitError(ctx context.Context, code, message, remediation string) {
	rc.emit(ctx, "error", map[string]any{
		"code":        code,
		"message":     message,
		"remediation": remediation,
	})
}

func (rc *runContext) logAction(ctx context.Context, uid uint32, from, subject string, action models.ActionKind, folder, reason string) {
	a := &models.Action{
		RunID:   rc.m.RunID,
		UID:     uid,
		From:    from,
		Subject: subject,
		Action:  action,
		Folder:  folder,
		Reason:  reason,
	}
	if err := rc.deps.Actions.Append(ctx, a); err != nil {
		rc.deps.Log.Warn("failed to append action row", zap.Error(err))
	}
}

// updateRun persists the current counters; called after every apply-stage
// message, matching the original's "atomic progress" write-after-each-item
// discipline so a crash mid-batch loses at most the in-flight message.
func (rc *runContext) updateRun(ctx context.Context) {
	run := &models.Run{
		ID:      rc.m.RunID,
		Total:   rc.total,
		Kept:    rc.kept,
		Filed:   rc.filed,
		Trashed: rc.trashed,
		Errors:  rc.errs,
		Skipped: rc.skipped,
	}
	if err := rc.deps.Runs.UpdateCounters(ctx, run); err != nil {
		rc.deps.Log.Warn("failed to update run counters", zap.Error(err))
	}
}

func (rc *runContext) finish(ctx context.Context, status models.RunStatus) {
	if err := rc.deps.Runs.Finish(ctx, rc.m.RunID, status); err != nil {
		rc.deps.Log.Warn("failed to finish run", zap.Error(err))
	}
}
