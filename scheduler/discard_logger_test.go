package scheduler

import (
	"go.uber.org/zap"

	"github.com/cleanr/inboxengine/internal/logger"
)

type discardLogger struct{}

func (discardLogger) Debug(msg string, fields ...zap.Field) {}
func (discardLogger) Info(msg string, fields ...zap.Field)  {}
func (discardLogger) Warn(msg string, fields ...zap.Field)  {}
func (discardLogger) Error(msg string, fields ...zap.Field) {}
func (discardLogger) With(fields ...zap.Field) logger.Logger {
	return discardLogger{}
}
func (discardLogger) Logger() *zap.Logger { return zap.NewNop() }
