package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LeventeLantos/boleto-reminder/internal/channel"
	"github.com/LeventeLantos/boleto-reminder/internal/config"
	"github.com/LeventeLantos/boleto-reminder/internal/repo"
	"github.com/LeventeLantos/boleto-reminder/internal/storage"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLoggingMiddleware_PassesThroughAndCapturesStatus(t *testing.T) {
	logs := captureLogs(t)

	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
	if out := logs.String(); !strings.Contains(out, "status=201") || !strings.Contains(out, "path=/test") {
		t.Fatalf("expected request log line, got %q", out)
	}
}

func TestLoggingMiddleware_ImplicitOKAndServerErrors(t *testing.T) {
	logs := captureLogs(t)

	ok := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hi"))
	}))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/a", nil))

	boom := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	boom.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/b", nil))

	out := logs.String()
	if !strings.Contains(out, "status=200") {
		t.Fatalf("expected implicit 200, got %q", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "status=500") {
		t.Fatalf("expected error-level line for 500, got %q", out)
	}
}

func TestSelectProvider(t *testing.T) {
	cases := map[string]string{
		"null":      "null",
		"hosted":    "hosted",
		"whatsmeow": "whatsmeow",
	}
	for kind, want := range cases {
		cfg := &config.Config{}
		cfg.Channel.Provider = kind
		cfg.Hosted.URL = "http://localhost:9999"
		cfg.Whatsmeow.StorePath = t.TempDir() + "/wa.db"

		if got := selectProvider(cfg, slog.Default()).Name(); got != want {
			t.Fatalf("provider %q: got %q", kind, got)
		}
	}

	if _, ok := selectProvider(&config.Config{Channel: config.ChannelConfig{Provider: "null"}}, slog.Default()).(channel.NullProvider); !ok {
		t.Fatalf("expected NullProvider")
	}
}

func TestOpenInvoiceStore_Memory(t *testing.T) {
	r, closeFn, err := openInvoiceStore(context.Background(), config.StoreConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("openInvoiceStore: %v", err)
	}
	defer closeFn()

	if _, ok := r.(*repo.MemoryInvoiceRepo); !ok {
		t.Fatalf("expected memory repo, got %T", r)
	}

	if _, _, err := openInvoiceStore(context.Background(), config.StoreConfig{Backend: "dynamo"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestOpenAttemptLogAndFileStore_Local(t *testing.T) {
	dir := t.TempDir()

	l, err := openAttemptLog(config.AttemptLogConfig{Backend: "file", Path: dir + "/logs/attempts.jsonl"}, nil)
	if err != nil {
		t.Fatalf("openAttemptLog: %v", err)
	}
	if n, err := l.Len(context.Background()); err != nil || n != 0 {
		t.Fatalf("expected empty log, got %d err=%v", n, err)
	}

	if _, err := openAttemptLog(config.AttemptLogConfig{Backend: "redis"}, nil); err == nil {
		t.Fatalf("expected error for redis log without client")
	}

	s, err := openFileStore(context.Background(), config.StorageConfig{Backend: "local", UploadDir: dir + "/uploads", MaxBytes: 1 << 20})
	if err != nil {
		t.Fatalf("openFileStore: %v", err)
	}
	if _, ok := s.(*storage.LocalStore); !ok {
		t.Fatalf("expected local store, got %T", s)
	}
}
