// Package utils holds the process-wide logger. Components take child
// loggers via Named so every log line carries its origin.
package utils

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLogFile = "apexbot.log"

var (
	log  *zap.Logger
	once sync.Once
)

// InitLogger builds the global logger: human-readable console output plus a
// JSON file sink. Only the first call configures anything.
func InitLogger(debug bool) *zap.Logger {
	once.Do(func() {
		level := zapcore.InfoLevel
		if debug {
			level = zapcore.DebugLevel
		}

		cores := []zapcore.Core{newConsoleCore(level)}
		if fileCore, ok := newFileCore(level); ok {
			cores = append(cores, fileCore)
		}

		log = zap.New(
			zapcore.NewTee(cores...),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	})
	return log
}

func newConsoleCore(level zapcore.Level) zapcore.Core {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.Lock(os.Stdout),
		level,
	)
}

// newFileCore appends JSON entries to the log file, overridable through
// APEXBOT_LOG_FILE. Logging continues console-only when the file cannot be
// opened.
func newFileCore(level zapcore.Level) (zapcore.Core, bool) {
	path := os.Getenv("APEXBOT_LOG_FILE")
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(enc),
		zapcore.AddSync(f),
		level,
	), true
}

// GetLogger returns the global logger, initializing it at info level if
// needed.
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false)
	}
	return log
}

// Named returns a child of the global logger tagged with a component name.
func Named(component string) *zap.Logger {
	return GetLogger().Named(component)
}

// CleanupLogger flushes any buffered log entries.
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
