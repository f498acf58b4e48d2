package logging

import (
	"path/filepath"
	"time"
)

// logFileStamp keeps one file per session and sorts lexically by start time.
const logFileStamp = "20060102_150405"

// LogFilePath returns the session log file path under logsDir.
func LogFilePath(logsDir, extensionName string, sessionStart time.Time) string {
	name := extensionName + "." + sessionStart.Format(logFileStamp) + ".log"
	return filepath.Join(logsDir, name)
}
