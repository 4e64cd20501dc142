// Package server wires the long-lived process: repositories, the
// orchestrator and scheduler, the progress bus, and the thin REST/SSE
// façade, then runs them until a termination signal arrives.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cleanr/inboxengine/api"
	"github.com/cleanr/inboxengine/classifier"
	"github.com/cleanr/inboxengine/config"
	"github.com/cleanr/inboxengine/internal/eventlog"
	"github.com/cleanr/inboxengine/internal/logger"
	"github.com/cleanr/inboxengine/internal/repository"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/orchestrator"
	"github.com/cleanr/inboxengine/progressbus"
	"github.com/cleanr/inboxengine/ratelimit"
	"github.com/cleanr/inboxengine/scheduler"
	"github.com/cleanr/inboxengine/worker"
)

// Server owns every long-lived component and the HTTP listener fronting
// them.
type Server struct {
	cfg          *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	repos        *repository.Repositories
	events       *eventlog.Log
	progress     *progressbus.Bus
	orchestrator *orchestrator.Driver
	scheduler    *scheduler.Scheduler
	tracerCloser io.Closer
}

// New builds every component against an already-open database connection;
// the caller (the `server` CLI subcommand) owns the connection's lifetime.
func New(cfg *config.Config, db *gorm.DB) (*Server, error) {
	log, err := logger.NewAppLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, log)
	if err != nil {
		return nil, fmt.Errorf("building jaeger tracer: %w", err)
	}
	opentracing.SetGlobalTracer(tracer)

	if err := repository.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	repos := repository.NewRepositories(db)

	events, err := eventlog.Open(cfg.EventLog.Path)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}

	progress := progressbus.New(events, log)

	runtime := &orchestrator.ProcessRuntime{BinaryPath: cfg.Runtime.WorkerBinaryPath}

	orch := orchestrator.NewDriver(orchestrator.Dependencies{
		FolderJobs: repos.FolderJobs,
		Runs:       repos.Runs,
		Containers: repos.WorkerContainers,
		Settings:   repos.Settings,
		Events:     events,
		Runtime:    runtime,
		Log:        log,
		DBPath:     cfg.Runtime.DBPath,
	})

	sched := scheduler.New(scheduler.Dependencies{
		Schedules:   repos.Schedules,
		Runs:        repos.Runs,
		Credentials: repos.Credentials,
		Settings:    repos.Settings,
		Runtime:     runtime,
		Log:         log,
		DBPath:      cfg.Runtime.DBPath,
	})

	var imapCfg worker.IMAPConfig
	if err := env.Parse(&imapCfg); err != nil {
		return nil, fmt.Errorf("parsing IMAP config: %w", err)
	}

	workerDeps := &worker.Dependencies{
		Credentials: repos.Credentials,
		Settings:    repos.Settings,
		FolderJobs:  repos.FolderJobs,
		Runs:        repos.Runs,
		Actions:     repos.Actions,
		Cache:       repos.Cache,
		Events:      events,
		Classifier:  classifier.NewClient(classifier.Config(*cfg.Classifier)),
		RateLimiter: ratelimit.New(),
		IMAP:        imapCfg,
		Log:         log,
	}

	apiDeps := &api.Dependencies{
		FolderJobs:      repos.FolderJobs,
		Schedules:       repos.Schedules,
		Runs:            repos.Runs,
		Settings:        repos.Settings,
		Orchestrator:    orch,
		Progress:        progress,
		WorkerDeps:      workerDeps,
		DBPath:          cfg.Runtime.DBPath,
		ParallelBatches: cfg.Defaults.ParallelBatches,
		APIKey:          cfg.App.APIKey,
		Log:             log,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	api.RegisterRoutes(router, apiDeps)

	return &Server{
		cfg:          cfg,
		log:          log,
		router:       router,
		repos:        repos,
		events:       events,
		progress:     progress,
		orchestrator: orch,
		scheduler:    sched,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.App.APIPort,
			Handler: router,
		},
	}, nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(fmt.Sprintf("panic.%s", name))
		ext.Error.Set(span, true)
		span.LogKV("event", "panic", "process", name, "error", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
		span.Finish()
		s.log.Error("panic recovered", zap.Any("process", name), zap.Any("error", r))
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

// Run starts the scheduler, kicks off boot recovery for any folder jobs left
// running by a previous process incarnation, starts the HTTP server, and
// blocks until a termination signal arrives.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	go s.wrapGoroutine("boot_recovery", func() {
		orchestrator.RecoverRunningJobs(ctx, s.orchestrator)
	})

	go s.wrapGoroutine("http_server", func() {
		s.log.Info("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error", zap.Any("error", err))
		}
	})

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	s.log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	s.scheduler.Stop()

	if s.tracerCloser != nil {
		_ = s.tracerCloser.Close()
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("http server shutdown error", zap.Any("error", err))
	}

	if err := s.events.Close(); err != nil {
		s.log.Error("event log close error", zap.Any("error", err))
	}

	return nil
}
