package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/karingamassive/membership-service/internal/config"
)

func TestNewLoggerWritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", nil)
	logger.Info("dropped")
	logger.Warn("kept", "component", "test")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected exactly one record, got %d: %s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["msg"] != "kept" || rec["component"] != "test" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestFanoutDeliversToEveryHandler(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(fanout{
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	}).With("svc", "membership")
	logger.Info("hello")
	if !bytes.Contains(a.Bytes(), []byte("svc=membership")) || !bytes.Contains(b.Bytes(), []byte("svc=membership")) {
		t.Fatalf("expected record in both sinks: %q %q", a.String(), b.String())
	}
}

func TestInitRuntimeDisabledExporters(t *testing.T) {
	cfg := &config.Config{OTELServiceName: "membership-service", OTELMetricsExportInterval: time.Second}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	rt, err := InitRuntime(context.Background(), cfg, logger, nil)
	if err != nil {
		t.Fatalf("init runtime: %v", err)
	}
	RecordAuthLogin(context.Background(), "success")
	RecordRateLimitDecision(context.Background(), "login", "allowed", "redis")
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatal("unexpected level mapping")
	}
}
