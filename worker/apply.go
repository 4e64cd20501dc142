package worker

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/cleanr/inboxengine/imap"
	"github.com/cleanr/inboxengine/internal/ierrors"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/interfaces"
	"github.com/cleanr/inboxengine/manifest"
	"github.com/cleanr/inboxengine/ratelimit"
)

// applyResults executes the IMAP operation implied by each classification,
// in input order, against sourceFolder, which it first selects read-write
// (fetch selected it read-only). Grounded on
// original_source/core/apply.py's apply_classifications, including its two
// distinct "unknown" fallbacks: an unrecognised action string falls back to
// keep with a "Unknown action" reason (data-driven safety net, handled in
// dispatchAction below), while an error or panic from a handler that is not
// an IMAP move failure is counted under the UNKNOWN error kind
// (dispatchAction's recover and recordMoveFailure).
func applyResults(ctx context.Context, deps *Dependencies, rc *runContext, sess interfaces.MailboxSession, m *manifest.Manifest, sourceFolder string, results []result, byUID map[uint32]imap.Message) {
	span, ctx := tracing.StartTracerSpan(ctx, "worker.applyResults")
	defer span.Finish()
	tracing.TagComponentWorker(span)

	isFolderJob := m.JobType == manifest.JobTypeFolderCleanup
	maxPerHour := settingInt(ctx, deps.Settings, "rate_limit_per_hour", defaultRateLimitPerHour)

	rc.emit(ctx, "pipeline", map[string]any{"stage": "apply", "total": len(results)})

	if _, err := sess.SelectFolder(ctx, sourceFolder, false); err != nil {
		rc.emitError(ctx, "CONNECTION_FAILED", err.Error(), "")
		return
	}

	for _, c := range results {
		for {
			allowed, wait := deps.RateLimiter.CheckAndRecord(maxPerHour)
			if allowed {
				break
			}
			if wait > ratelimit.WaitCap {
				wait = ratelimit.WaitCap
			}
			rc.emit(ctx, "status", map[string]any{"msg": "rate limit reached, waiting"})
			time.Sleep(wait)
		}

		msg, known := byUID[c.UID]
		subject, isSeen, isFlagged, fromAddr := "", true, false, ""
		if known {
			subject = msg.Subject
			isSeen = msg.IsSeen
			isFlagged = msg.IsFlagged
			fromAddr = msg.From
		}

		action := c.Action
		folder := c.Folder

		// skip_flagged double-check: fetch already dropped flagged
		// messages, but a cache hit can resurrect one fetched before the
		// setting changed.
		if m.SkipFlagged && isFlagged {
			rc.skipped++
			rc.logAction(ctx, c.UID, fromAddr, subject, models.ActionSkip, "", "Flagged email — skipped")
			rc.emit(ctx, "action", map[string]any{
				"uid": c.UID, "action": "skip", "reason": "Flagged email — skipped", "from_cache": c.FromCache,
			})
			rc.updateRun(ctx)
			continue
		}

		// Folder-drain invariant: nothing remains, so "keep" is rewritten.
		if isFolderJob && action == models.ActionKeep {
			action = models.ActionInbox
			folder = "INBOX"
		}

		// Unread-marketing gate (inbox runs only).
		if !isFolderJob && !isSeen {
			if !models.TrashActions[action] {
				rc.skipped++
				rc.logAction(ctx, c.UID, fromAddr, subject, models.ActionSkip, "", "Unread — skipped")
				rc.emit(ctx, "action", map[string]any{
					"uid": c.UID, "action": "skip", "reason": "Unread email — skipped", "from_cache": c.FromCache,
				})
				rc.updateRun(ctx)
				continue
			}
			if !m.DeleteMarketingUnread {
				rc.skipped++
				rc.logAction(ctx, c.UID, fromAddr, subject, models.ActionSkip, "", "Unread marketing — feature disabled")
				rc.emit(ctx, "action", map[string]any{
					"uid": c.UID, "action": "skip",
					"reason": "Unread marketing — feature disabled", "from_cache": c.FromCache,
				})
				rc.updateRun(ctx)
				continue
			}
		}

		dispatchAction(ctx, deps, rc, sess, m, sourceFolder, c, action, folder, fromAddr, subject)
	}

	rc.emit(ctx, "pipeline", map[string]any{
		"stage": "done", "kept": rc.kept, "filed": rc.filed,
		"trashed": rc.trashed, "errors": rc.errs, "skipped": rc.skipped,
	})
}

func dispatchAction(ctx context.Context, deps *Dependencies, rc *runContext, sess interfaces.MailboxSession, m *manifest.Manifest, sourceFolder string, c result, action models.ActionKind, folder, fromAddr, subject string) {
	defer func() {
		if r := recover(); r != nil {
			recordMoveFailure(ctx, rc, c.UID, subject, errors.Errorf("panic in %s handler: %v", action, r))
		}
	}()

	switch {
	case action == models.ActionKeep:
		rc.kept++
		rc.logAction(ctx, c.UID, fromAddr, subject, action, folder, c.Reason)
		rc.emit(ctx, "action", map[string]any{"uid": c.UID, "action": action, "stage": "keep", "from_cache": c.FromCache})
		rc.updateRun(ctx)

	case action == models.ActionInbox:
		if err := sess.Move(ctx, c.UID, "INBOX"); err != nil {
			recordMoveFailure(ctx, rc, c.UID, subject, err)
			return
		}
		rc.filed++
		rc.logAction(ctx, c.UID, fromAddr, subject, action, "INBOX", c.Reason)
		rc.emit(ctx, "action", map[string]any{"uid": c.UID, "action": action, "folder": "INBOX", "stage": "filed"})
		rc.updateRun(ctx)

	case models.FileActions[action]:
		if folder == "" {
			if err := sess.Move(ctx, c.UID, "INBOX"); err != nil {
				recordMoveFailure(ctx, rc, c.UID, subject, err)
				return
			}
			rc.filed++
			rc.logAction(ctx, c.UID, fromAddr, subject, models.ActionInbox, "INBOX", "No folder assigned — sent to INBOX")
			rc.emit(ctx, "action", map[string]any{
				"uid": c.UID, "action": "inbox", "folder": "INBOX", "stage": "filed",
				"reason": "No folder — sent to INBOX",
			})
			rc.updateRun(ctx)
			return
		}
		if err := sess.EnsureFolder(ctx, folder); err != nil {
			recordMoveFailure(ctx, rc, c.UID, subject, err)
			return
		}
		if err := sess.Move(ctx, c.UID, folder); err != nil {
			recordMoveFailure(ctx, rc, c.UID, subject, err)
			return
		}
		rc.filed++
		rc.logAction(ctx, c.UID, fromAddr, subject, action, folder, c.Reason)
		rc.emit(ctx, "action", map[string]any{"uid": c.UID, "action": action, "folder": folder, "stage": "filed"})
		rc.updateRun(ctx)

	case models.TrashActions[action]:
		if err := sess.Delete(ctx, c.UID); err != nil {
			recordMoveFailure(ctx, rc, c.UID, subject, err)
			return
		}
		rc.trashed++
		rc.logAction(ctx, c.UID, fromAddr, subject, action, "", c.Reason)
		rc.emit(ctx, "action", map[string]any{"uid": c.UID, "action": action, "stage": "trash"})
		rc.updateRun(ctx)

	default:
		// Unrecognised action string — keep safely rather than guess.
		rc.kept++
		rc.logAction(ctx, c.UID, fromAddr, subject, models.ActionKeep, "", "Unknown action: "+string(action))
		rc.emit(ctx, "action", map[string]any{"uid": c.UID, "action": "keep", "stage": "keep"})
		rc.updateRun(ctx)
	}
}

func recordMoveFailure(ctx context.Context, rc *runContext, uid uint32, subject string, err error) {
	rc.errs++
	code := "IMAP_MOVE_FAILED"
	if !errors.Is(err, ierrors.ErrIMAPMoveFailed) {
		code = "UNKNOWN"
	}
	rc.emit(ctx, "error", map[string]any{
		"code":    code,
		"message": err.Error(),
		"uid":     uid,
		"subject": subject,
	})
	rc.updateRun(ctx)
}
