// Package logger wraps zap behind a small interface so call sites depend on
// a handful of verbs instead of the concrete zap API.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	DevMode    bool   `env:"LOG_DEV_MODE" envDefault:"false"`
	JSONFormat bool   `env:"LOG_JSON" envDefault:"true"`
}

// Logger is the logging surface every component is handed explicitly at
// construction time; there is no package-level global.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
	// Logger exposes the underlying *zap.Logger for integrations (e.g. the
	// Jaeger tracer's zap log adapter) that need the concrete type.
	Logger() *zap.Logger
}

type appLogger struct {
	z *zap.Logger
}

func NewAppLogger(cfg *Config) (Logger, error) {
	level := zapcore.InfoLevel
	if cfg != nil {
		if err := level.Set(cfg.Level); err != nil {
			level = zapcore.InfoLevel
		}
	}

	var zcfg zap.Config
	if cfg != nil && cfg.DevMode {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if cfg != nil && !cfg.JSONFormat {
		zcfg.Encoding = "console"
	}

	z, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return &appLogger{z: z}, nil
}

func (l *appLogger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *appLogger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *appLogger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *appLogger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
func (l *appLogger) Logger() *zap.Logger                  { return l.z }

func (l *appLogger) With(fields ...zap.Field) Logger {
	return &appLogger{z: l.z.With(fields...)}
}
