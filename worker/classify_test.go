package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanr/inboxengine/classifier"
	"github.com/cleanr/inboxengine/fingerprint"
	"github.com/cleanr/inboxengine/imap"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/manifest"
)

func fakeClassifierServer(t *testing.T, classify func([]classifier.EmailForClassification) []classifier.Classification) *classifier.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		var emails []classifier.EmailForClassification
		if len(req.Messages) > 0 {
			const prefix = "Classify:\n\n"
			if body := req.Messages[0].Content; len(body) >= len(prefix) {
				_ = json.Unmarshal([]byte(body[len(prefix):]), &emails)
			}
		}

		results := classify(emails)
		text, _ := json.Marshal(results)
		resp := map[string]any{"content": []map[string]string{{"text": string(text)}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	return classifier.NewClient(classifier.Config{
		Endpoint:                srv.URL,
		Model:                   "test-model",
		TimeoutSeconds:          5,
		BreakerFailureThreshold: 100,
		BreakerCooldownSeconds:  1,
	})
}

func newClassifyDeps(t *testing.T, cc *classifier.Client) *Dependencies {
	return &Dependencies{
		Settings:   &fakeSettings{values: map[string]string{}},
		Runs:       &fakeRuns{},
		Actions:    &fakeActions{},
		Events:     openTestEvents(t),
		Cache:      newFakeCache(),
		Classifier: cc,
		Log:        discardLogger{},
	}
}

func TestClassifyBatchServesCacheHitsWithoutCallingClassifier(t *testing.T) {
	called := false
	cc := fakeClassifierServer(t, func([]classifier.EmailForClassification) []classifier.Classification {
		called = true
		return nil
	})
	deps := newClassifyDeps(t, cc)
	msg := imap.Message{UID: 1, From: "a@x.com", Subject: "Hi"}
	deps.Cache.(*fakeCache).entries[fingerprint.Hash(msg.From, msg.Subject)] = &models.CacheEntry{
		Action: models.ActionFinance, Folder: "Finance", Reason: "cached",
	}

	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, BatchSize: 10, ParallelBatches: 1, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	results := classifyBatch(context.Background(), deps, rc, m, "INBOX", []imap.Message{msg})

	require.Len(t, results, 1)
	assert.True(t, results[0].FromCache)
	assert.Equal(t, models.ActionFinance, results[0].Action)
	assert.False(t, called)
}

func TestClassifyBatchDiscardsCachedKeepForFolderCleanup(t *testing.T) {
	cc := fakeClassifierServer(t, func(emails []classifier.EmailForClassification) []classifier.Classification {
		out := make([]classifier.Classification, len(emails))
		for i, e := range emails {
			out[i] = classifier.Classification{UID: e.UID, Action: models.ActionSpam, Reason: "re-run"}
		}
		return out
	})
	deps := newClassifyDeps(t, cc)
	msg := imap.Message{UID: 1, From: "a@x.com", Subject: "Hi"}
	deps.Cache.(*fakeCache).entries[fingerprint.Hash(msg.From, msg.Subject)] = &models.CacheEntry{
		Action: models.ActionKeep, Reason: "stale inbox verdict",
	}

	m := &manifest.Manifest{JobType: manifest.JobTypeFolderCleanup, Folder: "Receipts", BatchSize: 10, ParallelBatches: 1, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	results := classifyBatch(context.Background(), deps, rc, m, "Receipts", []imap.Message{msg})

	require.Len(t, results, 1)
	assert.False(t, results[0].FromCache)
	assert.Equal(t, models.ActionSpam, results[0].Action)
}

func TestClassifyUncachedSplitsIntoChunksAndMergesResults(t *testing.T) {
	cc := fakeClassifierServer(t, func(emails []classifier.EmailForClassification) []classifier.Classification {
		out := make([]classifier.Classification, len(emails))
		for i, e := range emails {
			out[i] = classifier.Classification{UID: e.UID, Action: models.ActionKeep}
		}
		return out
	})
	deps := newClassifyDeps(t, cc)
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, BatchSize: 2, ParallelBatches: 2, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	batch := []imap.Message{
		{UID: 1, From: "a@x.com", Subject: "one"},
		{UID: 2, From: "b@x.com", Subject: "two"},
		{UID: 3, From: "c@x.com", Subject: "three"},
		{UID: 4, From: "d@x.com", Subject: "four"},
	}
	results := classifyBatch(context.Background(), deps, rc, m, "INBOX", batch)

	assert.Len(t, results, 4)
}

func TestClassifyChunkFailureIsLocalAndEmitsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	t.Cleanup(srv.Close)
	cc := classifier.NewClient(classifier.Config{
		Endpoint: srv.URL, Model: "test-model", TimeoutSeconds: 5,
		BreakerFailureThreshold: 100, BreakerCooldownSeconds: 1,
	})
	deps := newClassifyDeps(t, cc)
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, BatchSize: 10, ParallelBatches: 1, RunID: 1, SessionID: "s"}
	rc := newRunContext(deps, m)

	batch := []imap.Message{{UID: 1, From: "a@x.com", Subject: "one"}}
	results := classifyBatch(context.Background(), deps, rc, m, "INBOX", batch)

	assert.Empty(t, results)
}
