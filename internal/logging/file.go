package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogFileConfig names a per-run log file. Prefix, PipelineLogDir, and
// RunID are all optional.
type LogFileConfig struct {
	Prefix         string
	LogDir         string
	PipelineLogDir string
	PipelineName   string
	RunID          string
}

// OpenLogFile prepares config's log directory and opens a new,
// timestamped log file inside it.
func OpenLogFile(config LogFileConfig) (*os.File, error) {
	dir, err := prepareLogDirectory(config)
	if err != nil {
		return nil, err
	}
	return openFile(filepath.Join(dir, generateLogFilename(config)))
}

func prepareLogDirectory(config LogFileConfig) (string, error) {
	dir := config.PipelineLogDir
	if dir == "" {
		dir = filepath.Join(config.LogDir, sanitizeForPath(config.PipelineName))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("logging: preparing log directory %s: %w", dir, err)
	}
	return dir, nil
}

func generateLogFilename(config LogFileConfig) string {
	name := sanitizeForPath(config.PipelineName)
	ts := time.Now().Format("20060102_150405")
	parts := []string{config.Prefix + name, ts}
	if config.RunID != "" {
		parts = append(parts, config.RunID)
	}
	return strings.Join(parts, "_") + ".log"
}

func openFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: opening log file %s: %w", path, err)
	}
	return f, nil
}

func sanitizeForPath(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}
