package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "monitor"))
	log.Info("cycle finished", Int("items", 3), Err(errors.New("boom")), Err(nil))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if got["message"] != "cycle finished" || got["comp"] != "monitor" || got["items"] != float64(3) || got["err"] != "boom" {
		t.Fatalf("entry=%v", got)
	}
	if c, _ := got["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller=%v", got["caller"])
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("out=%q", buf.String())
	}
}

func TestZeroAndNopLoggersDiscard(t *testing.T) {
	t.Parallel()

	var zero Logger
	zero.Error("nothing")
	Nop().With(String("k", "v")).Warn("nothing")
}

func TestServiceApplySwapsLevelAndFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "a.log")
	second := filepath.Join(dir, "b.log")

	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	defer func() { _ = svc.Close() }()
	log = log.With(String("comp", "app"))

	log.Debug("debug before")
	log.Info("info before")

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: second}})
	log.Debug("debug after")

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(a), "debug before") || !strings.Contains(string(a), "info before") {
		t.Fatalf("first file=%q", a)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "debug after") || !strings.Contains(string(b), `"comp":"app"`) {
		t.Fatalf("second file=%q", b)
	}
}

func TestStackTrace(t *testing.T) {
	t.Parallel()

	if st := StackTrace(1, 4); !strings.Contains(st, "TestStackTrace") {
		t.Fatalf("stack=%q", st)
	}
}
