package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires the façade's handlers onto gin route groups: a
// public health check, and a key-guarded /v1 group for everything else.
func RegisterRoutes(r *gin.Engine, deps *Dependencies) {
	if deps == nil {
		panic("api: Dependencies cannot be nil")
	}

	r.Use(gin.Recovery())
	r.GET("/health", healthCheck)

	keyCfg := APIKeyConfig{HeaderName: "X-API-KEY", ValidAPIKey: deps.APIKey}

	v1 := r.Group("/v1")
	v1.Use(requestIDMiddleware())
	v1.Use(tracingMiddleware())
	v1.Use(apiKeyMiddleware(keyCfg))
	{
		v1.POST("/runs", startManualRun(deps))

		folderJobs := v1.Group("/folder-jobs")
		{
			folderJobs.GET("", listFolderJobs(deps))
			folderJobs.POST("", createAndStartFolderJob(deps))
			folderJobs.GET("/:id", getFolderJob(deps))
			folderJobs.POST("/:id/pause", pauseFolderJob(deps))
			folderJobs.POST("/:id/resume", resumeFolderJob(deps))
		}

		schedules := v1.Group("/schedules")
		{
			schedules.GET("", listSchedules(deps))
			schedules.POST("", createSchedule(deps))
		}

		v1.GET("/progress/:session_id", streamProgress(deps))
	}
}
