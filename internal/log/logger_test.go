package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentImporter, Output: &buf})
	l.WithOperation(OpImport).Info("Imported", FieldCount, 3)

	out := buf.String()
	for _, want := range []string{"component=importer", "operation=import", "count=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
	if l.Component() != ComponentImporter {
		t.Errorf("unexpected component %q", l.Component())
	}
}

func TestLogFieldsToSlice(t *testing.T) {
	f := NewFields().WithUser(1).WithAccount(2).WithError(errors.New("bad")).WithError(nil)
	got := f.ToSlice()
	want := []any{FieldAccountID, int64(2), FieldError, "bad", FieldUserID, int64(1)}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("item %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentHTTP, Output: &buf})

	var fromCtx *Logger
	h := RequestLogger(l, func(*http.Request) string { return "req-1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = FromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/x", nil))

	if fromCtx == nil || fromCtx.Component() != ComponentHTTP {
		t.Fatalf("expected request logger in context")
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "status_code=404", "request_id=req-1", "path=/api/x"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestFromContextDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Logger == nil {
		t.Fatalf("expected fallback logger")
	}
}
