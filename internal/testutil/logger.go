// Package testutil provides test helpers for structured logging and
// stylesheet fixtures.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// NewTestLogger returns a logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// Record is a flattened log record.
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// CaptureHandler keeps every record it handles.
type CaptureHandler struct {
	mu      *sync.Mutex
	records *[]Record
	attrs   []slog.Attr
}

// NewCaptureLogger returns a logger and the handler that captures its records.
func NewCaptureLogger() (*slog.Logger, *CaptureHandler) {
	h := &CaptureHandler{mu: &sync.Mutex{}, records: &[]Record{}}
	return slog.New(h), h
}

// Enabled implements slog.Handler.
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	rec := Record{Level: r.Level, Message: r.Message, Attrs: make(map[string]string)}
	for _, a := range h.attrs {
		rec.Attrs[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.String()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, rec)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &CaptureHandler{mu: h.mu, records: h.records, attrs: merged}
}

// WithGroup implements slog.Handler. Groups are flattened.
func (h *CaptureHandler) WithGroup(string) slog.Handler { return h }

// Records returns a copy of the captured records.
func (h *CaptureHandler) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Record(nil), *h.records...)
}

// ErrorRecords returns the captured records at error level or above.
func (h *CaptureHandler) ErrorRecords() []Record {
	var out []Record
	for _, r := range h.Records() {
		if r.Level >= slog.LevelError {
			out = append(out, r)
		}
	}
	return out
}

// WriteFiles creates files under root from a relative path -> content map.
func WriteFiles(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
}
