package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// JSONLogger writes newline-delimited JSON log records to a writer (stderr by
// default). It is the production logger used outside of tests; ProductionLogger
// in the teacher framework follows the same shape (component-scoped, field-based,
// context-aware).
type JSONLogger struct {
	mu        sync.Mutex
	out       *os.File
	component string
	minLevel  level
}

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

// NewJSONLogger creates a logger that writes to stderr at info level.
func NewJSONLogger() *JSONLogger {
	return &JSONLogger{out: os.Stderr, minLevel: levelInfo}
}

// WithComponent returns a logger stamped with the given component name,
// sharing the same underlying writer and copying the current level filter
// (a later SetMinLevel on the parent does not reach the copy).
func (l *JSONLogger) WithComponent(component string) Logger {
	return &JSONLogger{out: l.out, component: component, minLevel: l.minLevel}
}

func (l *JSONLogger) write(lvl level, lvlName, msg string, traceID string, fields map[string]interface{}) {
	if lvl < l.minLevel {
		return
	}
	record := map[string]interface{}{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"level":     lvlName,
		"component": l.component,
		"msg":       msg,
	}
	if traceID != "" {
		record["trace_id"] = traceID
	}
	for k, v := range fields {
		record[k] = v
	}
	b, err := json.Marshal(record)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(b))
}

func traceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}

type traceIDKey struct{}

// WithTraceID attaches a trace id to a context so every log line emitted
// while handling a run carries the same correlation id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func (l *JSONLogger) Info(msg string, fields map[string]interface{})  { l.write(levelInfo, "info", msg, "", fields) }
func (l *JSONLogger) Error(msg string, fields map[string]interface{}) { l.write(levelError, "error", msg, "", fields) }
func (l *JSONLogger) Warn(msg string, fields map[string]interface{})  { l.write(levelWarn, "warn", msg, "", fields) }
func (l *JSONLogger) Debug(msg string, fields map[string]interface{}) { l.write(levelDebug, "debug", msg, "", fields) }

func (l *JSONLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(levelInfo, "info", msg, traceIDFromContext(ctx), fields)
}
func (l *JSONLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(levelError, "error", msg, traceIDFromContext(ctx), fields)
}
func (l *JSONLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(levelWarn, "warn", msg, traceIDFromContext(ctx), fields)
}
func (l *JSONLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(levelDebug, "debug", msg, traceIDFromContext(ctx), fields)
}

var _ ComponentAwareLogger = (*JSONLogger)(nil)

// SetMinLevel adjusts the minimum level emitted; buildApp calls it to enable
// debug output when the configured logging level is "debug".
func (l *JSONLogger) SetMinLevel(debug bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if debug {
		l.minLevel = levelDebug
	} else {
		l.minLevel = levelInfo
	}
}
