package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the subset of structured logging used across the site.
type Logger interface {
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

var (
	once       sync.Once
	logger     *zap.SugaredLogger
	syncLogger = func() error { return nil }
)

// Shared returns the process-wide logger as a Logger.
func Shared() Logger {
	return Sugared()
}

// Sugared returns a lazily initialised structured logger.
func Sugared() *zap.SugaredLogger {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.MessageKey = "msg"
		cfg.EncoderConfig.LevelKey = "level"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		base, err := cfg.Build()
		if err != nil {
			panic(err)
		}
		logger = base.Sugar().With("service", "devdirect-website")
		syncLogger = base.Sync
	})

	return logger
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return zap.NewNop().Sugar()
}

// Sync flushes any buffered log entries.
func Sync() error {
	if err := syncLogger(); err != nil {
		if strings.Contains(err.Error(), "bad file descriptor") || strings.Contains(err.Error(), "inappropriate ioctl") {
			return nil
		}
		return err
	}
	return nil
}
