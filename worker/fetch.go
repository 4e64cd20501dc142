package worker

import (
	"context"

	"github.com/cleanr/inboxengine/imap"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/interfaces"
	"github.com/cleanr/inboxengine/manifest"
)

// fetchFolderBatch lists every UID in the manifest's folder (optionally
// filtered by age), takes the first batch_size in the requested order, and
// fetches their headers. Grounded on original_source/core/imap.py's
// fetch_emails_from_folder: returns the batch plus the folder's total
// matching count so the caller can report remaining work.
func fetchFolderBatch(ctx context.Context, sess interfaces.MailboxSession, m *manifest.Manifest) ([]imap.Message, int, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "worker.fetchFolderBatch")
	defer span.Finish()
	tracing.TagComponentWorker(span)

	if _, err := sess.SelectFolder(ctx, m.Folder, true); err != nil {
		return nil, 0, err
	}

	uids, err := sess.Search(ctx, imap.SearchCriteria{SinceDaysAgo: m.StartFromDaysAgo})
	if err != nil {
		return nil, 0, err
	}
	total := len(uids)

	ordered := orderUIDs(uids, m.OldestFirst)
	take := m.BatchSize
	if take > len(ordered) {
		take = len(ordered)
	}
	batch := ordered[:take]

	messages, err := sess.FetchHeaders(ctx, batch)
	if err != nil {
		return nil, total, err
	}
	return dropFlagged(messages, m.SkipFlagged), total, nil
}

// fetchInboxBatch lists read (or all, when delete_marketing_unread allows
// acting on unread mail) UIDs in the manifest's folder, takes the first or
// last batch_size depending on oldest_first, and fetches their headers.
// Grounded on original_source/core/imap.py's fetch_inbox_emails.
func fetchInboxBatch(ctx context.Context, sess interfaces.MailboxSession, m *manifest.Manifest) ([]imap.Message, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "worker.fetchInboxBatch")
	defer span.Finish()
	tracing.TagComponentWorker(span)

	if _, err := sess.SelectFolder(ctx, m.Folder, true); err != nil {
		return nil, err
	}

	criteria := imap.SearchCriteria{SinceDaysAgo: m.StartFromDaysAgo}
	if !m.DeleteMarketingUnread {
		seen := true
		criteria.Seen = &seen
	}
	uids, err := sess.Search(ctx, criteria)
	if err != nil {
		return nil, err
	}

	ordered := orderUIDs(uids, m.OldestFirst)
	take := m.BatchSize
	if take > len(ordered) {
		take = len(ordered)
	}
	batch := ordered[:take]

	messages, err := sess.FetchHeaders(ctx, batch)
	if err != nil {
		return nil, err
	}
	return dropFlagged(messages, m.SkipFlagged), nil
}

// orderUIDs returns uids ascending when oldestFirst, else descending.
// Search already returns ascending order, so descending is a reversed copy.
func orderUIDs(uids []uint32, oldestFirst bool) []uint32 {
	if oldestFirst {
		return uids
	}
	reversed := make([]uint32, len(uids))
	for i, u := range uids {
		reversed[len(uids)-1-i] = u
	}
	return reversed
}

func dropFlagged(messages []imap.Message, skipFlagged bool) []imap.Message {
	if !skipFlagged {
		return messages
	}
	out := messages[:0]
	for _, m := range messages {
		if !m.IsFlagged {
			out = append(out, m)
		}
	}
	return out
}
