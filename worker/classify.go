package worker

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/cleanr/inboxengine/classifier"
	"github.com/cleanr/inboxengine/fingerprint"
	"github.com/cleanr/inboxengine/imap"
	"github.com/cleanr/inboxengine/internal/ierrors"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/manifest"
)

// result is one classified outcome, whether served from cache or freshly
// returned by the classifier. It carries only what the apply stage needs;
// From/Subject/IsSeen/IsFlagged are looked up from the fetched batch by UID.
type result struct {
	UID       uint32
	Action    models.ActionKind
	Folder    string
	Reason    string
	FromCache bool
}

// classifyBatch runs Stage 2 (cache check) and Stage 3 (parallel
// classification) over one fetched batch, grounded on
// original_source/core/classifier.py's classify_emails_parallel and
// core/cache.py's check_cache/store_cache.
func classifyBatch(ctx context.Context, deps *Dependencies, rc *runContext, m *manifest.Manifest, sourceFolder string, batch []imap.Message) []result {
	span, ctx := tracing.StartTracerSpan(ctx, "worker.classifyBatch")
	defer span.Finish()
	tracing.TagComponentWorker(span)

	ttl := cacheTTL(ctx, deps.Settings)

	var cached []result
	var uncached []imap.Message
	for _, msg := range batch {
		hash := fingerprint.Hash(msg.From, msg.Subject)
		entry, hit, err := deps.Cache.Get(ctx, hash, ttl)
		if err != nil {
			deps.Log.Warn("cache lookup failed; treating as miss")
			uncached = append(uncached, msg)
			continue
		}
		if !hit {
			uncached = append(uncached, msg)
			continue
		}
		// folder_cleanup never keeps: a cached "keep" was classified under
		// inbox policy and must be re-run under the drain policy.
		if m.JobType == manifest.JobTypeFolderCleanup && entry.Action == models.ActionKeep {
			uncached = append(uncached, msg)
			continue
		}
		cached = append(cached, result{
			UID:       msg.UID,
			Action:    entry.Action,
			Folder:    entry.Folder,
			Reason:    entry.Reason,
			FromCache: true,
		})
	}

	if len(cached) > 0 {
		rc.emit(ctx, "pipeline", map[string]any{
			"stage": "dedup", "count": len(cached), "total": len(batch),
		})
	}
	rc.emit(ctx, "pipeline", map[string]any{
		"stage": "classify", "queued": len(uncached), "cached": len(cached),
	})
	for _, c := range cached {
		rc.emit(ctx, "cached", map[string]any{
			"uid": c.UID, "action": c.Action, "folder": c.Folder, "reason": c.Reason,
		})
	}

	if len(uncached) == 0 {
		return cached
	}

	results := append(cached, classifyUncached(ctx, deps, rc, m, sourceFolder, uncached)...)
	return results
}

// classifyUncached partitions uncached into batch_size-sized chunks and
// dispatches up to parallel_batches of them concurrently. Each chunk's
// failure is local: it emits an error event and contributes no results,
// the run is never aborted by one bad batch.
func classifyUncached(ctx context.Context, deps *Dependencies, rc *runContext, m *manifest.Manifest, sourceFolder string, uncached []imap.Message) []result {
	batchSize := m.BatchSize
	if batchSize <= 0 {
		batchSize = len(uncached)
	}
	var chunks [][]imap.Message
	for i := 0; i < len(uncached); i += batchSize {
		end := i + batchSize
		if end > len(uncached) {
			end = len(uncached)
		}
		chunks = append(chunks, uncached[i:end])
	}

	parallel := m.ParallelBatches
	if parallel <= 0 {
		parallel = 1
	}

	rc.emit(ctx, "pipeline", map[string]any{
		"stage": "classify", "batches": len(chunks), "parallel": min(parallel, len(chunks)),
	})

	perChunk := make([][]result, len(chunks))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for idx, chunk := range chunks {
		idx, chunk := idx, chunk
		g.Go(func() error {
			perChunk[idx] = classifyChunk(gCtx, deps, rc, m, sourceFolder, idx, chunk)
			return nil
		})
	}
	_ = g.Wait() // classifyChunk never returns an error to the group; failures are handled locally

	var out []result
	for _, r := range perChunk {
		out = append(out, r...)
	}
	return out
}

func classifyChunk(ctx context.Context, deps *Dependencies, rc *runContext, m *manifest.Manifest, sourceFolder string, idx int, chunk []imap.Message) []result {
	emails := make([]classifier.EmailForClassification, len(chunk))
	byUID := make(map[string]imap.Message, len(chunk))
	for i, msg := range chunk {
		uid := strconv.FormatUint(uint64(msg.UID), 10)
		emails[i] = classifier.EmailForClassification{UID: uid, From: msg.From, Subject: msg.Subject, Date: msg.Date}
		byUID[uid] = msg
	}

	classifications, err := deps.Classifier.ClassifyBatch(ctx, m, sourceFolder, emails)
	if err != nil {
		rc.emit(ctx, "error", map[string]any{
			"code":    classificationErrorCode(err),
			"message": err.Error(),
			"batch":   idx + 1,
		})
		return nil
	}

	out := make([]result, 0, len(classifications))
	for _, c := range classifications {
		uid, ok := byUID[c.UID]
		if !ok {
			continue
		}
		out = append(out, result{UID: uid.UID, Action: c.Action, Folder: c.Folder, Reason: c.Reason})
		if err := deps.Cache.Put(ctx, &models.CacheEntry{
			Hash:   fingerprint.Hash(uid.From, uid.Subject),
			Action: c.Action,
			Folder: c.Folder,
			Reason: c.Reason,
		}); err != nil {
			deps.Log.Warn("failed to persist classification cache entry")
		}
	}

	rc.emit(ctx, "pipeline", map[string]any{
		"stage": "classified", "batch": idx + 1, "count": len(out),
	})
	return out
}

func classificationErrorCode(err error) string {
	switch {
	case errors.Is(err, ierrors.ErrClassifierRateLimited):
		return "RATE_LIMIT"
	case errors.Is(err, ierrors.ErrClassifierOverloaded):
		return "API_OVERLOADED"
	case errors.Is(err, ierrors.ErrClassifierParseError):
		return "PARSE_ERROR"
	default:
		return "API_ERROR"
	}
}
