package main

import (
	"fmt"
	"log"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/urfave/cli/v2"

	"github.com/cleanr/inboxengine/classifier"
	"github.com/cleanr/inboxengine/config"
	"github.com/cleanr/inboxengine/internal/database"
	"github.com/cleanr/inboxengine/internal/eventlog"
	"github.com/cleanr/inboxengine/internal/logger"
	"github.com/cleanr/inboxengine/internal/repository"
	"github.com/cleanr/inboxengine/manifest"
	"github.com/cleanr/inboxengine/ratelimit"
	"github.com/cleanr/inboxengine/server"
	"github.com/cleanr/inboxengine/worker"
)

func main() {
	app := &cli.App{
		Name:  "inboxengine",
		Usage: "IMAP mailbox-cleaning job orchestration engine",
		Commands: []*cli.Command{
			serverCmd(),
			workerCmd(),
			migrateCmd(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run the orchestrator, scheduler and REST/SSE façade",
		Action: func(c *cli.Context) error {
			cfg, err := config.InitConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			db, err := database.NewConnection(cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}

			srv, err := server.New(cfg, db)
			if err != nil {
				return fmt.Errorf("building server: %w", err)
			}

			return srv.Run()
		},
	}
}

// workerCmd is the ephemeral sibling-process entrypoint the orchestrator
// and scheduler both spawn: it decodes the MANIFEST/DB_PATH environment
// variables ProcessRuntime.Launch sets and runs exactly one batch.
func workerCmd() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run a single batch described by the MANIFEST environment variable",
		Action: func(c *cli.Context) error {
			cfg, err := config.InitConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			encoded := os.Getenv("MANIFEST")
			if encoded == "" {
				return fmt.Errorf("worker: MANIFEST environment variable is required")
			}
			m, err := manifest.Decode(encoded)
			if err != nil {
				return fmt.Errorf("decoding manifest: %w", err)
			}

			dbPath := os.Getenv("DB_PATH")
			if dbPath == "" {
				dbPath = cfg.Runtime.DBPath
			}

			db, err := database.NewConnection(cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			repos := repository.NewRepositories(db)

			events, err := eventlog.Open(dbPath)
			if err != nil {
				return fmt.Errorf("opening event log: %w", err)
			}
			defer events.Close()

			log, err := logger.NewAppLogger(cfg.Logger)
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}

			var imapCfg worker.IMAPConfig
			if err := env.Parse(&imapCfg); err != nil {
				return fmt.Errorf("parsing IMAP config: %w", err)
			}

			deps := &worker.Dependencies{
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

			return worker.RunWorker(c.Context, deps, m)
		},
	}
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply schema migrations",
		Action: func(c *cli.Context) error {
			cfg, err := config.InitConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			db, err := database.NewConnection(cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}

			if err := repository.MigrateDB(db); err != nil {
				return fmt.Errorf("migrating schema: %w", err)
			}
			log.Println("migration completed successfully")
			return nil
		},
	}
}
