package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"time"
)

// Logger is the package-wide logger. It starts as a no-op so that library
// consumers and tests never hit a nil logger; InitLogger swaps in the real one.
var Logger = zap.NewNop()

func InitLogger() error {
	return InitLoggerAt("info")
}

// InitLoggerAt builds the logger with an explicit minimum level, one of
// "debug", "info", "warn", "error".
func InitLoggerAt(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(time.RFC3339))
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := config.Build()
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// SetLogger replaces the package logger, returning the previous one.
// Useful for tests that want to observe or silence output.
func SetLogger(l *zap.Logger) *zap.Logger {
	prev := Logger
	if l == nil {
		l = zap.NewNop()
	}
	Logger = l
	return prev
}
