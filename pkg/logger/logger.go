// Package logger provides the process-wide log used by domkit.
//
// The printf-style helpers write to the file configured with Init. Components
// that want structured fields call Named to get a child zap.Logger that shares
// the same sink.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	logFile      *os.File
	mu           sync.Mutex
)

// Init initializes the global logger with the specified log file path.
func Init(logPath string) error {
	return InitLevel(logPath, zapcore.DebugLevel)
}

// InitLevel is Init with a minimum level.
func InitLevel(logPath string, level zapcore.Level) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
	if logFile != nil {
		logFile.Close()
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //#nosec G304 -- user-provided log path
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), level)

	logFile = f
	globalLogger = zap.New(core)

	return nil
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		_ = globalLogger.Sync()
		globalLogger = nil
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Named returns a child logger for a component. Before Init it is a no-op
// logger, so library callers never need a nil check.
func Named(name string) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger == nil {
		return zap.NewNop()
	}
	return globalLogger.Named(name)
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	logf(zapcore.InfoLevel, format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	logf(zapcore.DebugLevel, format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	logf(zapcore.ErrorLevel, format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	logf(zapcore.WarnLevel, format, v...)
}

func logf(level zapcore.Level, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger == nil {
		return
	}
	if ce := globalLogger.Check(level, fmt.Sprintf(format, v...)); ce != nil {
		ce.Write()
	}
}

// GetWriter returns the underlying writer for use by drivers.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
