// Package api is the thin engine façade: routing and request/response
// shaping only. It starts a manual cleanup run, starts/pauses/resumes
// folder jobs, lists/creates schedules, and streams a session's progress —
// nothing else, and it carries none of the engine's invariants itself.
//
// Grounded on the routing/middleware shape of api/routes.go and
// api/middleware (API key header, gin route groups), narrowed to this
// engine's much smaller surface.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cleanr/inboxengine/internal/ierrors"
	"github.com/cleanr/inboxengine/internal/logger"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/utils"
	"github.com/cleanr/inboxengine/interfaces"
	"github.com/cleanr/inboxengine/manifest"
	"github.com/cleanr/inboxengine/orchestrator"
	"github.com/cleanr/inboxengine/progressbus"
	"github.com/cleanr/inboxengine/worker"
)

// Dependencies is everything the façade's handlers need. WorkerDeps is a
// template: a manual run copies it and fills in Progress before calling
// worker.RunWorker directly in a goroutine of this process, since a manual
// run has no sibling process to launch.
type Dependencies struct {
	FolderJobs      interfaces.FolderJobRepository
	Schedules       interfaces.ScheduleRepository
	Runs            interfaces.RunRepository
	Settings        interfaces.SettingRepository
	Orchestrator    *orchestrator.Driver
	Progress        *progressbus.Bus
	WorkerDeps      *worker.Dependencies
	DBPath          string
	ParallelBatches int
	APIKey          string
	Log             logger.Logger
}

const defaultParallelBatches = 3

func parallelBatches(ctx context.Context, deps *Dependencies) int {
	if deps.ParallelBatches > 0 {
		return deps.ParallelBatches
	}
	raw, found, err := deps.Settings.Get(ctx, "parallel_batches")
	if err != nil || !found {
		return defaultParallelBatches
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultParallelBatches
	}
	return n
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type manualRunRequest struct {
	Folder                string `json:"folder"`
	Limit                 int    `json:"limit"`
	DeleteMarketingUnread bool   `json:"delete_marketing_unread"`
	SkipFlagged           bool   `json:"skip_flagged"`
	CustomPrompt          string `json:"custom_prompt"`
}

// startManualRun launches an inbox-cleanup run in-process (not as a
// sibling worker) so it can be handed a live progressbus.Bus pointer; its
// events go to that bus's in-memory queue as well as to the durable log.
func startManualRun(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req manualRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		run := &models.Run{
			RunType:      models.RunTypeManual,
			SourceFolder: req.Folder,
			Status:       models.RunRunning,
		}
		if err := deps.Runs.Create(c.Request.Context(), run); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create run"})
			return
		}

		sessionID := utils.GenerateNanoIDWithPrefix(fmt.Sprintf("manual_%d", run.ID), 6)
		m := manifest.NewInboxCleanup(run.ID, sessionID, req.Folder, req.Limit,
			parallelBatches(c.Request.Context(), deps), deps.DBPath,
			req.DeleteMarketingUnread, req.SkipFlagged, req.CustomPrompt)

		workerDeps := *deps.WorkerDeps
		workerDeps.Progress = deps.Progress

		go func() {
			ctx := context.Background()
			if err := worker.RunWorker(ctx, &workerDeps, m); err != nil {
				deps.Log.Warn("api: manual run failed")
			}
		}()

		c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID, "session_id": sessionID})
	}
}

type folderJobRequest struct {
	Name                  string `json:"name"`
	Folder                string `json:"folder"`
	BatchSize             int    `json:"batch_size"`
	RateLimitPerHour      int    `json:"rate_limit_per_hour"`
	OldestFirst           bool   `json:"oldest_first"`
	StartFromDaysAgo      *int   `json:"start_from_days_ago"`
	MaxEmails             *int   `json:"max_emails"`
	CustomPrompt          string `json:"custom_prompt"`
	DeleteMarketingUnread bool   `json:"delete_marketing_unread"`
	SkipFlagged           bool   `json:"skip_flagged"`
	AggressiveTrash       bool   `json:"aggressive_trash"`
}

// createAndStartFolderJob persists an enabled FolderJob and hands it to the
// orchestrator in a background goroutine; the HTTP response does not wait
// for the first batch.
func createAndStartFolderJob(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req folderJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		job := &models.FolderJob{
			Name:                  req.Name,
			Folder:                req.Folder,
			Enabled:               true,
			Status:                models.FolderJobIdle,
			BatchSize:             req.BatchSize,
			RateLimitPerHour:      req.RateLimitPerHour,
			OldestFirst:           req.OldestFirst,
			StartFromDaysAgo:      req.StartFromDaysAgo,
			MaxEmails:             req.MaxEmails,
			CustomPrompt:          req.CustomPrompt,
			DeleteMarketingUnread: req.DeleteMarketingUnread,
			SkipFlagged:           req.SkipFlagged,
			AggressiveTrash:       req.AggressiveTrash,
		}
		if err := deps.FolderJobs.Create(c.Request.Context(), job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create folder job"})
			return
		}

		go func() {
			if err := deps.Orchestrator.RunFolderJob(context.Background(), job.ID); err != nil {
				deps.Log.Warn("api: folder job driver exited with error")
			}
		}()

		c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
	}
}

func listFolderJobs(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobs, err := deps.FolderJobs.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list folder jobs"})
			return
		}
		c.JSON(http.StatusOK, jobs)
	}
}

func getFolderJob(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := jobIDParam(c)
		if err != nil {
			return
		}
		job, err := deps.FolderJobs.Get(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "folder job not found"})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// pauseFolderJob flips Enabled to false. This is purely a cooperative
// signal: the orchestrator's own loop observes it (between batches, or at
// the next poll tick) and exits without starting another batch.
func pauseFolderJob(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := jobIDParam(c)
		if err != nil {
			return
		}
		job, err := deps.FolderJobs.Get(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "folder job not found"})
			return
		}
		job.Enabled = false
		if err := deps.FolderJobs.Update(c.Request.Context(), job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to pause folder job"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "pausing"})
	}
}

// resumeFolderJob flips Enabled back to true and, since a paused job's
// driver goroutine has already exited, spawns a fresh one. A pause taken
// mid-poll can leave the last worker running; RunFolderJob waits for such
// orphans before it launches the next batch, as boot recovery does.
func resumeFolderJob(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := jobIDParam(c)
		if err != nil {
			return
		}
		job, err := deps.FolderJobs.Get(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "folder job not found"})
			return
		}
		if job.Status == models.FolderJobRunning && job.Enabled {
			c.JSON(http.StatusOK, gin.H{"status": "already running"})
			return
		}
		job.Enabled = true
		if err := deps.FolderJobs.Update(c.Request.Context(), job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resume folder job"})
			return
		}

		go func() {
			if err := deps.Orchestrator.RunFolderJob(context.Background(), job.ID); err != nil {
				deps.Log.Warn("api: folder job driver exited with error")
			}
		}()

		c.JSON(http.StatusOK, gin.H{"status": "resuming"})
	}
}

func jobIDParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, err
	}
	return uint(id), nil
}

func listSchedules(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheds, err := deps.Schedules.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list schedules"})
			return
		}
		c.JSON(http.StatusOK, scheds)
	}
}

type scheduleRequest struct {
	Name                  string `json:"name"`
	Enabled               bool   `json:"enabled"`
	IntervalHours         *int   `json:"interval_hours"`
	IntervalMinutes       *int   `json:"interval_minutes"`
	LimitPerRun           int    `json:"limit_per_run"`
	Folder                string `json:"folder"`
	CustomPrompt          string `json:"custom_prompt"`
	DeleteMarketingUnread bool   `json:"delete_marketing_unread"`
	SkipFlagged           bool   `json:"skip_flagged"`
}

func createSchedule(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req scheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if (req.IntervalHours == nil) == (req.IntervalMinutes == nil) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ierrors.ErrScheduleIntervalAmbiguous.Error()})
			return
		}

		sched := &models.Schedule{
			Name:                  req.Name,
			Enabled:               req.Enabled,
			IntervalHours:         req.IntervalHours,
			IntervalMinutes:       req.IntervalMinutes,
			LimitPerRun:           req.LimitPerRun,
			Folder:                req.Folder,
			CustomPrompt:          req.CustomPrompt,
			DeleteMarketingUnread: req.DeleteMarketingUnread,
			SkipFlagged:           req.SkipFlagged,
		}
		if err := deps.Schedules.Create(c.Request.Context(), sched); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create schedule"})
			return
		}
		c.JSON(http.StatusCreated, sched)
	}
}

// streamProgress serves a session's progress as SSE, resuming the durable
// side from the client-supplied Last-Event-ID header when present.
func streamProgress(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := c.Param("session_id")

		var lastSeen uint64
		if raw := c.GetHeader("Last-Event-ID"); raw != "" {
			if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
				lastSeen = n
			}
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		frames := deps.Progress.Stream(c.Request.Context(), session, lastSeen)
		c.Stream(func(w io.Writer) bool {
			frame, ok := <-frames
			if !ok {
				return false
			}
			if frame.Keepalive {
				_, _ = w.Write([]byte(": keepalive\n\n"))
				return true
			}
			if frame.ID != nil {
				c.Writer.Write([]byte(fmt.Sprintf("id: %d\n", *frame.ID)))
			}
			c.SSEvent(frame.Event, frame.Data)
			return true
		})
	}
}
