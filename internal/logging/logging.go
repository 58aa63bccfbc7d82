// Package logging sets up zerolog for a program that owns the terminal:
// records go to a file, never to stdout or stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Open returns a logger writing JSON lines to path at the given level,
// plus the closer for the file. An empty path disables logging.
func Open(path, level string) (zerolog.Logger, io.Closer, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if strings.TrimSpace(path) == "" {
		return zerolog.Nop(), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	logger := New(f, level)
	return logger, f, nil
}

// New builds a logger on w. Unknown levels fall back to info.
func New(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("app", "noisechat-tui").Logger()
}
