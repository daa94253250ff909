// Package logger wraps zap with the service's configuration and trace ids.
package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Lejs5034/LegionOfBrothers-sub000/config"
)

// contextKey keeps our context values apart from other packages'.
type contextKey string

const (
	// TraceIDKey carries the request trace id.
	TraceIDKey contextKey = "trace_id"
	loggerKey  contextKey = "logger"
)

// Logger embeds *zap.Logger so callers use the zap API directly.
type Logger struct {
	*zap.Logger
	file *os.File
}

// NewLogger builds a logger from cfg.
//
// Level is one of debug, info, warn, error, fatal (unknown values mean info).
// Format "json" selects the JSON encoder, anything else the console encoder.
// Output "file" appends to FilePath, creating its directory; anything else
// writes to stdout.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var sink zapcore.WriteSyncer
	var file *os.File
	if cfg.Output == "file" {
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("logging.file_path is required for file output")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		sink = zapcore.AddSync(f)
	} else {
		sink = zapcore.Lock(zapcore.AddSync(os.Stdout))
	}

	core := zapcore.NewCore(encoder, sink, parseLogLevel(cfg.Level))
	zl := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: zl, file: file}, nil
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// NewDevelopmentLogger uses console encoding at debug level.
func NewDevelopmentLogger() (*Logger, error) {
	zl, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: zl}, nil
}

// Named returns a child logger for one component.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// WithTraceID returns a logger that stamps traceID on every entry.
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String(string(TraceIDKey), traceID))}
}

// WithContext adds the trace id found in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if traceID := GetTraceID(ctx); traceID != "" {
		return l.WithTraceID(traceID)
	}
	return l
}

func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

func (l *Logger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Debug(msg, fields...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Info(msg, fields...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Warn(msg, fields...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Error(msg, fields...)
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close flushes buffered entries and releases the log file.
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
