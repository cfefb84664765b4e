package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// capture is the sink shared by a TestLogger and every logger derived from it
// with With, so a level change applies to all of them.
type capture struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	level Level
}

// TestLogger writes one JSON object per entry into memory.
type TestLogger struct {
	sink   *capture
	fields map[string]interface{}
}

// NewTestLogger returns a logger and the buffer holding its JSON lines.
//
//	logger, buf := log.NewTestLogger(log.LevelDebug)
//	logger.Info("fitted", log.SamplesKey, 10)
//	strings.Contains(buf.String(), "fitted")
func NewTestLogger(level Level) (*TestLogger, *bytes.Buffer) {
	sink := &capture{level: level}
	return &TestLogger{sink: sink, fields: map[string]interface{}{}}, &sink.buf
}

func (t *TestLogger) Debug(msg string, fields ...any) { t.emit(LevelDebug, msg, fields) }
func (t *TestLogger) Info(msg string, fields ...any)  { t.emit(LevelInfo, msg, fields) }
func (t *TestLogger) Warn(msg string, fields ...any)  { t.emit(LevelWarn, msg, fields) }

// Error stores a leading error argument under ErrAttrKey.
func (t *TestLogger) Error(msg string, fields ...any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			fields = append([]any{ErrAttrKey, err}, fields[1:]...)
		}
	}
	t.emit(LevelError, msg, fields)
}

func (t *TestLogger) With(fields ...any) Logger {
	merged := make(map[string]interface{}, len(t.fields)+len(fields)/2)
	for k, v := range t.fields {
		merged[k] = v
	}
	putFields(merged, fields)
	return &TestLogger{sink: t.sink, fields: merged}
}

func (t *TestLogger) Enabled(_ context.Context, level Level) bool {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	return level >= t.sink.level
}

func (t *TestLogger) emit(level Level, msg string, fields []any) {
	if !t.Enabled(context.Background(), level) {
		return
	}
	entry := map[string]interface{}{"level": level.String(), "message": msg}
	for k, v := range t.fields {
		entry[k] = v
	}
	putFields(entry, fields)
	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(fmt.Sprintf(`{"level":%q,"message":%q,"marshal_error":%q}`, level.String(), msg, err.Error()))
	}

	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.buf.Write(line)
	t.sink.buf.WriteByte('\n')
}

// putFields copies key/value pairs into dst; errors are stored as their message.
func putFields(dst map[string]interface{}, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		v := fields[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		dst[fmt.Sprint(fields[i])] = v
	}
}

// GetLogEntries decodes the captured lines.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	t.sink.mu.Lock()
	raw := t.sink.buf.String()
	t.sink.mu.Unlock()

	var entries []map[string]interface{}
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ContainsMessage reports whether the captured text contains message.
func (t *TestLogger) ContainsMessage(message string) bool {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	return strings.Contains(t.sink.buf.String(), message)
}

// ContainsField reports whether some entry has key equal to value. Numbers
// come back from JSON as float64.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, e := range entries {
		if v, ok := e[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Clear drops everything captured so far.
func (t *TestLogger) Clear() {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.buf.Reset()
}

// TestLoggerProvider routes GetLogger and GetLoggerWithName to one TestLogger.
// Install it with SetProvider.
type TestLoggerProvider struct {
	logger *TestLogger
}

// NewTestLoggerProvider returns the provider and the logger it hands out.
func NewTestLoggerProvider(level Level) (*TestLoggerProvider, *TestLogger) {
	logger, _ := NewTestLogger(level)
	return &TestLoggerProvider{logger: logger}, logger
}

func (p *TestLoggerProvider) GetLogger() Logger { return p.logger }

func (p *TestLoggerProvider) GetLoggerWithName(name string) Logger {
	return p.logger.With(ComponentKey, name)
}

func (p *TestLoggerProvider) SetLevel(level Level) {
	p.logger.sink.mu.Lock()
	defer p.logger.sink.mu.Unlock()
	p.logger.sink.level = level
}
