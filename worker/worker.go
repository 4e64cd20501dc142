// Package worker is the batch pipeline run by the ephemeral sibling process
// a manifest describes: connect, fetch one batch, classify it (cached and
// parallel), apply the classifications over IMAP, and record progress.
//
// Grounded on original_source/worker.py's job-runner shape (run_folder_batch
// / run_inbox_batch sharing one set of bound helpers) and core/apply.py's
// apply_classifications. There is exactly one public entrypoint, RunWorker,
// matching the original's single `main()`.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cleanr/inboxengine/classifier"
	"github.com/cleanr/inboxengine/imap"
	"github.com/cleanr/inboxengine/internal/eventlog"
	"github.com/cleanr/inboxengine/internal/logger"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/interfaces"
	"github.com/cleanr/inboxengine/manifest"
	"github.com/cleanr/inboxengine/progressbus"
	"github.com/cleanr/inboxengine/ratelimit"
)

// IMAPConfig names the server this engine dials; unlike the account the
// worker authenticates as (the `email`/`app_password` credentials), this is
// a deployment-wide setting since one engine instance serves one mailbox
// provider.
type IMAPConfig struct {
	Server string `env:"IMAP_SERVER" envDefault:"imap.mail.me.com"`
	Port   int    `env:"IMAP_PORT" envDefault:"993"`
	TLS    bool   `env:"IMAP_TLS" envDefault:"true"`
}

// Dependencies is everything RunWorker needs beyond the manifest itself.
// Every field is an interface or a small concrete type so the pipeline can
// be driven against fakes in tests.
type Dependencies struct {
	Credentials interfaces.CredentialRepository
	Settings    interfaces.SettingRepository
	FolderJobs  interfaces.FolderJobRepository
	Runs        interfaces.RunRepository
	Actions     interfaces.ActionRepository
	Cache       interfaces.CacheRepository
	Events      *eventlog.Log

	// Progress is set only for a manual run launched in-process by the API
	// server; a worker spawned as a sibling OS process by the orchestrator
	// or scheduler has no in-process bus to point at and leaves this nil,
	// relying on Events alone.
	Progress *progressbus.Bus

	Classifier  *classifier.Client
	RateLimiter *ratelimit.Limiter
	IMAP        IMAPConfig
	Log         logger.Logger
}

const (
	defaultRateLimitPerHour = 200
	defaultCacheTTLDays     = 30
)

// RunWorker is the worker process's sole entrypoint. Both job families
// (folder_cleanup, {inbox,scheduled}_cleanup) share this entrypoint and
// diverge only in their fetch stage, matching the original's per-job-type
// dispatch inside one main().
func RunWorker(ctx context.Context, deps *Dependencies, m *manifest.Manifest) (err error) {
	span, ctx := tracing.StartTracerSpan(ctx, "worker.RunWorker")
	defer span.Finish()
	tracing.TagComponentWorker(span)
	tracing.TagRun(span, strconv.FormatUint(uint64(m.RunID), 10))
	tracing.TagSession(span, m.SessionID)

	rc := newRunContext(deps, m)

	defer func() {
		if r := recover(); r != nil {
			deps.Log.Error("worker crashed", zap.Any("panic", r))
			rc.emitError(ctx, "WORKER_CRASH", fmt.Sprintf("%v", r), "")
			_ = deps.Runs.Finish(ctx, m.RunID, models.RunError)
			err = errors.Errorf("worker: panic: %v", r)
		}
	}()

	deps.Log.Info("worker starting",
		zap.String("job_type", string(m.JobType)),
		zap.String("session", m.SessionID),
		zap.String("folder", m.Folder),
	)

	switch m.JobType {
	case manifest.JobTypeFolderCleanup:
		err = runFolderBatch(ctx, deps, rc, m)
	case manifest.JobTypeInboxCleanup, manifest.JobTypeScheduledCleanup:
		err = runInboxBatch(ctx, deps, rc, m)
	default:
		err = errors.Errorf("worker: unknown job_type %q", m.JobType)
	}

	if err != nil {
		tracing.TraceErr(span, err)
		rc.emitError(ctx, "FATAL", err.Error(), "")
		_ = deps.Runs.Finish(ctx, m.RunID, models.RunError)
		return err
	}
	return nil
}

func loadCredentials(ctx context.Context, deps *Dependencies) (email, appPassword, apiKey string, err error) {
	email, err = deps.Credentials.Get(ctx, "email")
	if err != nil {
		return "", "", "", errors.Wrap(err, "worker: load email credential")
	}
	appPassword, err = deps.Credentials.Get(ctx, "app_password")
	if err != nil {
		return "", "", "", errors.Wrap(err, "worker: load app_password credential")
	}
	apiKey, err = deps.Credentials.Get(ctx, "api_key")
	if err != nil {
		return "", "", "", errors.Wrap(err, "worker: load api_key credential")
	}
	return email, appPassword, apiKey, nil
}

func dial(ctx context.Context, deps *Dependencies, email, appPassword string) (*imap.Session, error) {
	return imap.Dial(ctx, imap.Credentials{
		Server:   deps.IMAP.Server,
		Port:     deps.IMAP.Port,
		Username: email,
		Password: appPassword,
		TLS:      deps.IMAP.TLS,
	})
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

func cacheTTL(ctx context.Context, settings interfaces.SettingRepository) time.Duration {
	days := settingInt(ctx, settings, "cache_ttl_days", defaultCacheTTLDays)
	return time.Duration(days) * 24 * time.Hour
}
