package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanr/inboxengine/imap"
	"github.com/cleanr/inboxengine/internal/ierrors"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/manifest"
	"github.com/cleanr/inboxengine/ratelimit"
)

func newApplyDeps(t *testing.T, mailbox []imap.Message) (*Dependencies, *fakeMailbox) {
	fm := newFakeMailbox(mailbox)
	deps := &Dependencies{
		Settings:    &fakeSettings{values: map[string]string{}},
		Runs:        &fakeRuns{},
		Actions:     &fakeActions{},
		Events:      openTestEvents(t),
		RateLimiter: ratelimit.New(),
		Log:         discardLogger{},
	}
	return deps, fm
}

func TestApplyResultsKeepLeavesMessageInPlace(t *testing.T) {
	messages := []imap.Message{{UID: 1, Subject: "Statement", From: "bank@x.com", IsSeen: true}}
	deps, fm := newApplyDeps(t, messages)
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	results := []result{{UID: 1, Action: models.ActionKeep, Reason: "important"}}
	applyResults(context.Background(), deps, rc, fm, m, "INBOX", results, messagesByUID(messages))

	assert.Equal(t, 1, rc.kept)
	assert.Empty(t, fm.moved)
	assert.Empty(t, fm.deleted)
}

func TestApplyResultsFolderJobRewritesKeepToInbox(t *testing.T) {
	messages := []imap.Message{{UID: 1, Subject: "Old receipt", IsSeen: true}}
	deps, fm := newApplyDeps(t, messages)
	m := &manifest.Manifest{JobType: manifest.JobTypeFolderCleanup, Folder: "Receipts", RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	results := []result{{UID: 1, Action: models.ActionKeep}}
	applyResults(context.Background(), deps, rc, fm, m, "Receipts", results, messagesByUID(messages))

	assert.Equal(t, 0, rc.kept)
	assert.Equal(t, 1, rc.filed)
	assert.Equal(t, "INBOX", fm.moved[1])
}

func TestApplyResultsFileActionEnsuresFolderThenMoves(t *testing.T) {
	messages := []imap.Message{{UID: 1, Subject: "Flight", IsSeen: true}}
	deps, fm := newApplyDeps(t, messages)
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	results := []result{{UID: 1, Action: models.ActionTravel, Folder: "Travel"}}
	applyResults(context.Background(), deps, rc, fm, m, "INBOX", results, messagesByUID(messages))

	assert.Equal(t, 1, rc.filed)
	assert.Contains(t, fm.ensured, "Travel")
	assert.Equal(t, "Travel", fm.moved[1])
}

func TestApplyResultsTrashActionDeletes(t *testing.T) {
	messages := []imap.Message{{UID: 1, Subject: "Spam", IsSeen: true}}
	deps, fm := newApplyDeps(t, messages)
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	results := []result{{UID: 1, Action: models.ActionSpam}}
	applyResults(context.Background(), deps, rc, fm, m, "INBOX", results, messagesByUID(messages))

	assert.Equal(t, 1, rc.trashed)
	assert.True(t, fm.deleted[1])
}

func TestApplyResultsSkipsFlaggedWhenSkipFlaggedEnabled(t *testing.T) {
	messages := []imap.Message{{UID: 1, Subject: "Important", IsFlagged: true, IsSeen: true}}
	deps, fm := newApplyDeps(t, messages)
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, SkipFlagged: true, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	results := []result{{UID: 1, Action: models.ActionSpam}}
	applyResults(context.Background(), deps, rc, fm, m, "INBOX", results, messagesByUID(messages))

	assert.Equal(t, 1, rc.skipped)
	assert.False(t, fm.deleted[1])
}

func TestApplyResultsSkipsUnreadNonTrashOnInboxRun(t *testing.T) {
	messages := []imap.Message{{UID: 1, Subject: "Newsletter", IsSeen: false}}
	deps, fm := newApplyDeps(t, messages)
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	results := []result{{UID: 1, Action: models.ActionFinance, Folder: "Finance"}}
	applyResults(context.Background(), deps, rc, fm, m, "INBOX", results, messagesByUID(messages))

	assert.Equal(t, 1, rc.skipped)
	assert.Empty(t, fm.moved)
}

func TestApplyResultsUnreadMarketingRespectsFeatureFlag(t *testing.T) {
	messages := []imap.Message{{UID: 1, Subject: "Sale", IsSeen: false}}
	deps, fm := newApplyDeps(t, messages)

	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, DeleteMarketingUnread: false, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)
	results := []result{{UID: 1, Action: models.ActionMarketing}}
	applyResults(context.Background(), deps, rc, fm, m, "INBOX", results, messagesByUID(messages))
	assert.Equal(t, 1, rc.skipped)
	assert.False(t, fm.deleted[1])

	m2 := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, DeleteMarketingUnread: true, RunID: 1, SessionID: "s"}
	rc2 := newRunContext(deps, m2)
	applyResults(context.Background(), deps, rc2, fm, m2, "INBOX", results, messagesByUID(messages))
	assert.Equal(t, 1, rc2.trashed)
	assert.True(t, fm.deleted[1])
}

func TestApplyResultsUnknownActionFallsBackToKeep(t *testing.T) {
	messages := []imap.Message{{UID: 1, Subject: "Mystery", IsSeen: true}}
	deps, fm := newApplyDeps(t, messages)
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	results := []result{{UID: 1, Action: models.ActionKind("bogus")}}
	applyResults(context.Background(), deps, rc, fm, m, "INBOX", results, messagesByUID(messages))

	require.Equal(t, 1, rc.kept)
	require.Len(t, deps.Actions.(*fakeActions).rows, 1)
	assert.Contains(t, deps.Actions.(*fakeActions).rows[0].Reason, "Unknown action")
}

func TestApplyResultsFileWithNoFolderFallsBackToInbox(t *testing.T) {
	messages := []imap.Message{{UID: 1, Subject: "Unsorted", IsSeen: true}}
	deps, fm := newApplyDeps(t, messages)
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	results := []result{{UID: 1, Action: models.ActionFinance, Folder: ""}}
	applyResults(context.Background(), deps, rc, fm, m, "INBOX", results, messagesByUID(messages))

	assert.Equal(t, 1, rc.filed)
	assert.Equal(t, "INBOX", fm.moved[1])
}

func TestRecordMoveFailureClassifiesIMAPMoveError(t *testing.T) {
	rc, _, _, _ := newTestRunContext(t)

	recordMoveFailure(context.Background(), rc, 1, "subj", ierrors.ErrIMAPMoveFailed)
	assert.Equal(t, 1, rc.errs)
}

func TestRecordMoveFailureFallsBackToUnknownErrorKind(t *testing.T) {
	rc, _, _, _ := newTestRunContext(t)

	recordMoveFailure(context.Background(), rc, 1, "subj", assertableErr{"boom"})
	assert.Equal(t, 1, rc.errs)
}

type assertableErr struct{ msg string }

func (e assertableErr) Error() string { return e.msg }
