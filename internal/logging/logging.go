// Package logging provides the structured logger used across the service.
package logging

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Fields carries structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

var base = zap.NewNop()

// Initialize builds the process-wide zap logger. env "development" selects the
// human-readable console encoder; anything else uses the production JSON config.
func Initialize(level, env string) error {
	logLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}

	var cfg zap.Config
	if env == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = logLevel

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	base = l
	return nil
}

// Sync flushes buffered entries.
func Sync() {
	_ = base.Sync()
}

// Logger is a named component logger.
type Logger struct {
	zl *zap.Logger
}

// NewLogger returns a logger tagged with the given component name.
func NewLogger(component string) *Logger {
	return &Logger{zl: base.With(zap.String("component", component))}
}

// NewNopLogger returns a logger that discards everything. Used in tests.
func NewNopLogger() *Logger {
	return &Logger{zl: zap.NewNop()}
}

func (l *Logger) Debug(msg string, fields ...Fields) { l.zl.Debug(msg, toZap(fields)...) }
func (l *Logger) Info(msg string, fields ...Fields)  { l.zl.Info(msg, toZap(fields)...) }
func (l *Logger) Warn(msg string, fields ...Fields)  { l.zl.Warn(msg, toZap(fields)...) }
func (l *Logger) Error(msg string, fields ...Fields) { l.zl.Error(msg, toZap(fields)...) }
func (l *Logger) Fatal(msg string, fields ...Fields) { l.zl.Fatal(msg, toZap(fields)...) }

// With returns a child logger that always carries fields.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{zl: l.zl.With(toZap([]Fields{fields})...)}
}

func toZap(fields []Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields[0]))
	for _, f := range fields {
		for k, v := range f {
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

// RequestLogger logs every handled HTTP request.
func RequestLogger(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("Request handled", Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
			"request_id": c.GetString("request_id"),
		})
	}
}
