package logging

import (
	"go.uber.org/zap"
)

// NewLogger builds a production ready structured logger.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	return cfg.Build()
}

// WithOperation enriches the logger with operation and task identifiers.
func WithOperation(logger *zap.Logger, operation, taskID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if taskID != "" {
		fields = append(fields, zap.String("task_id", taskID))
	}
	return logger.With(fields...)
}
