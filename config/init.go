package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/cleanr/inboxengine/internal/logger"
	"github.com/cleanr/inboxengine/internal/tracing"
)

// InitConfig loads a local .env file if present, then binds every nested
// struct from the environment in one pass.
func InitConfig() (*Config, error) {
	cfg := &Config{
		App:        &AppConfig{},
		Logger:     &logger.Config{},
		Tracing:    &tracing.JaegerConfig{},
		Database:   &DatabaseConfig{},
		Classifier: &ClassifierConfig{},
		Defaults:   &DefaultsConfig{},
		EventLog:   &EventLogConfig{},
		Scheduler:  &SchedulerConfig{},
		Runtime:    &WorkerRuntimeConfig{},
	}

	if err := godotenv.Load(); err != nil {
		log.Print("no .env file found, reading configuration from the environment only")
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
