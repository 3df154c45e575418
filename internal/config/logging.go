package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const logFilePattern = "filetree-*.log"

// NewLogger builds the JSON slog logger. Debug level when cfg.Debug is set.
// Every record carries the environment and table prefix so logs from
// side-by-side deployments on one database stay distinguishable.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).
		With("env", cfg.Environment, "table_prefix", cfg.TablePrefix)
}

// OpenLogOutput returns stdout, tee'd into a fresh log file under cfg.LogDir
// when one is configured. The returned close func is never nil.
func OpenLogOutput(cfg *Config) (io.Writer, func() error, error) {
	if cfg.LogDir == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := SetupLogFile(cfg.LogDir, cfg.LogMaxFiles)
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(os.Stdout, f), f.Close, nil
}

// SetupLogFile creates a timestamped log file in dir and prunes the oldest
// files so at most maxFiles remain. The caller closes the file.
func SetupLogFile(dir string, maxFiles int) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	name := "filetree-" + time.Now().UTC().Format("2006-01-02T15-04-05") + ".log"
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	// Pruning failures leave extra files behind but logging still works
	if err := pruneLogs(dir, maxFiles); err != nil {
		fmt.Fprintf(os.Stderr, "warning: prune old logs: %v\n", err)
	}
	return f, nil
}

func pruneLogs(dir string, keep int) error {
	files, err := filepath.Glob(filepath.Join(dir, logFilePattern))
	if err != nil {
		return err
	}
	if len(files) <= keep {
		return nil
	}

	// Names embed the timestamp, so lexical order is age order
	slices.Sort(files)
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("remove %s: %w", f, err)
		}
	}
	return nil
}
