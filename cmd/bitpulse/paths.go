package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// captureNameFormat names capture files by their start time.
const captureNameFormat = "rng_capture_20060102_150405.csv"

// resolveCapturePath turns a file-or-directory path into a concrete capture
// file path. Directories (existing, or spelled with a trailing separator)
// get a timestamped filename; missing parent directories are created.
func resolveCapturePath(path string, now time.Time) (string, error) {
	if path == "" {
		path = "."
	}

	isDir := strings.HasSuffix(path, string(os.PathSeparator))
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		isDir = true
	}

	if isDir {
		path = filepath.Join(path, now.Format(captureNameFormat))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create capture directory: %w", err)
		}
	}
	return path, nil
}
