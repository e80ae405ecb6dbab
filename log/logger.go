// Package log provides structured logging scoped to a connection or
// producer/consumer session.
//
// Two logger variants are available:
//   - Logger: non-sugared zap.Logger for the transport hot path (structured fields, no formatting)
//   - SugaredLogger: printf-style logging for CLI/debug surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnvVar is honored for the logger's minimum level, mirroring the
// original validator plugin's RUST_LOG-style override. Accepts
// error|warn|info|debug; unset or unrecognized values default to info.
const LevelEnvVar = "GATEWAY_LOG"

// levelFromEnv reads LevelEnvVar and returns the corresponding zap level,
// defaulting to InfoLevel.
func levelFromEnv() zapcore.Level {
	switch strings.ToLower(os.Getenv(LevelEnvVar)) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger wraps zap.Logger with session context (producer/connection identity).
// Use for the transport hot path where allocation and formatting cost matter.
type Logger struct {
	zap *zap.Logger
}

// SugaredLogger wraps zap.SugaredLogger with session context.
// Use for CLI output and debug surfaces where convenience matters more than
// performance.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// SessionContext identifies the producer/consumer session a Logger's log
// lines belong to. ConnectionID and PeerAddr are left zero-valued for
// loggers created before a connection is established (e.g. at startup).
type SessionContext struct {
	ProducerID   uuid.UUID
	ConnectionID uuid.UUID
	PeerAddr     string
}

// NewLogger creates a logger scoped to sc. Output defaults to os.Stderr.
func NewLogger(sc SessionContext) *Logger {
	return newLoggerWithWriter(sc, os.Stderr)
}

// WithOutput returns a new logger that writes to w at the level set by
// LevelEnvVar. The returned logger carries no context fields: the session
// context and any fields added with With are not copied to it.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		levelFromEnv(),
	)
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))}
}

// With returns a new logger with additional structured fields merged in,
// e.g. a stream's event kind once it is known.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{zap: l.zap.With(zap.Any("fields", fields))}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

func newLoggerWithWriter(sc SessionContext, w io.Writer) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		levelFromEnv(),
	)

	contextFields := []zap.Field{
		zap.String("producer_id", sc.ProducerID.String()),
	}
	if sc.ConnectionID != uuid.Nil {
		contextFields = append(contextFields, zap.String("connection_id", sc.ConnectionID.String()))
	}
	if sc.PeerAddr != "" {
		contextFields = append(contextFields, zap.String("peer_addr", sc.PeerAddr))
	}

	zapLogger := zap.New(core).With(contextFields...)
	return &Logger{zap: zapLogger}
}

// Debug logs a debug message with structured fields.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message with structured fields.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message with structured fields.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message with structured fields.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
