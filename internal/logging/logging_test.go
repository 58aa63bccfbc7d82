package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")
	logger.Info().Msg("hidden")
	logger.Warn().Str("module", "sync").Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, `"module":"sync"`) || !strings.Contains(out, "shown") {
		t.Fatalf("expected warn record with module field: %s", out)
	}
}

func TestNewUnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "loud")
	logger.Debug().Msg("debug")
	logger.Info().Msg("info")
	if strings.Contains(buf.String(), `"debug"`) || !strings.Contains(buf.String(), `"info"`) {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestOpenWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	logger, closer, err := Open(path, "debug")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	logger.Debug().Msg("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), "to file") {
		t.Fatalf("log file missing record: %s", raw)
	}
}

func TestOpenEmptyPathDisables(t *testing.T) {
	_, closer, err := Open("  ", "info")
	if err != nil || closer == nil {
		t.Fatalf("expected nop logger, got closer=%v err=%v", closer, err)
	}
}
