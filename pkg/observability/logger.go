package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production JSON logger tagged with the service name.
// Debug output is enabled when debug is true.
func NewLogger(serviceName string, debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", serviceName)), nil
}

// MustLogger is NewLogger for process entry points; it falls back to a no-op
// logger rather than aborting startup.
func MustLogger(serviceName string, debug bool) *zap.Logger {
	logger, err := NewLogger(serviceName, debug)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
