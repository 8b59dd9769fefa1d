package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogFilePath names the log file for a library load started at sessionStart.
func LogFilePath(logsDir, extensionName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", extensionName, sessionStart.Format("20060102_150405")),
	)
}

// OpenLogFile creates logsDir and opens the log file for sessionStart. A file
// already at that path is kept as <path>.old.
func OpenLogFile(logsDir, extensionName string, sessionStart time.Time) (*os.File, string, error) {
	path := LogFilePath(logsDir, extensionName, sessionStart)
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, path, fmt.Errorf("create logs dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".old"); err != nil {
			return nil, path, fmt.Errorf("rotate %s: %w", path, err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, path, fmt.Errorf("open log file: %w", err)
	}
	return f, path, nil
}
