package common

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
	LogFatal
)

// DebugEnvVar enables debug logging for every logger created after it is set
const DebugEnvVar = "MQ_EDIT_DEBUG"

var zapLevels = map[LogLevel]zapcore.Level{
	LogDebug: zapcore.DebugLevel,
	LogInfo:  zapcore.InfoLevel,
	LogWarn:  zapcore.WarnLevel,
	LogError: zapcore.ErrorLevel,
	LogFatal: zapcore.FatalLevel,
}

// SafeLogger provides STDIO-safe logging that never writes to stdout.
// Language servers own stdout of their own processes, and the CLI prints
// results there, so every log line goes to stderr (or an explicit writer).
type SafeLogger struct {
	prefix string
	level  zap.AtomicLevel
	sugar  *zap.SugaredLogger
}

// NewSafeLogger creates a new safe logger with the given prefix writing to stderr
func NewSafeLogger(prefix string) *SafeLogger {
	return NewSafeLoggerWithWriter(prefix, os.Stderr)
}

// NewSafeLoggerWithWriter creates a logger writing to w instead of stderr
func NewSafeLoggerWithWriter(prefix string, w io.Writer) *SafeLogger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if isDebugEnv() {
		level.SetLevel(zapcore.DebugLevel)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05"),
		EncodeLevel:      bracketLevelEncoder,
		EncodeName:       prefixNameEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)

	return &SafeLogger{
		prefix: prefix,
		level:  level,
		sugar:  zap.New(core).Named(prefix).Sugar(),
	}
}

func isDebugEnv() bool {
	v := strings.ToLower(os.Getenv(DebugEnvVar))
	return v == "1" || v == "true" || v == "yes"
}

func bracketLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

func prefixNameEncoder(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(name + ":")
}

// SetLevel sets the minimum log level
func (l *SafeLogger) SetLevel(level LogLevel) {
	if zl, ok := zapLevels[level]; ok {
		l.level.SetLevel(zl)
	}
}

// Level returns the current minimum log level
func (l *SafeLogger) Level() LogLevel {
	for level, zl := range zapLevels {
		if zl == l.level.Level() {
			return level
		}
	}
	return LogInfo
}

// Debug logs a debug message
func (l *SafeLogger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an info message
func (l *SafeLogger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *SafeLogger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *SafeLogger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Fatal logs a fatal message and exits
func (l *SafeLogger) Fatal(format string, args ...interface{}) {
	l.sugar.Fatalf(format, args...)
}

// Sync flushes buffered log entries
func (l *SafeLogger) Sync() error {
	return l.sugar.Sync()
}

// Global logger instances for convenience
var (
	LSPLogger = NewSafeLogger("LSP")
	CLILogger = NewSafeLogger("CLI")
)

// SetLogLevel applies level to every global logger
func SetLogLevel(level LogLevel) {
	LSPLogger.SetLevel(level)
	CLILogger.SetLevel(level)
}

// SanitizeErrorForLogging trims multi-line server errors to their first line
// and caps the length so a chatty server cannot flood the log.
func SanitizeErrorForLogging(err interface{}) string {
	if err == nil {
		return ""
	}
	var msg string
	switch v := err.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprintf("%v", v)
	}

	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	const maxLen = 200
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}
