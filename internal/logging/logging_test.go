package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	start := time.Date(2026, 8, 23, 9, 4, 55, 0, time.UTC)

	got := LogFilePath("logs", "sitetrace", start)
	assert.Equal(t, filepath.Join("logs", "sitetrace.20260823_090455.log"), got)

	abs := LogFilePath(filepath.Join("/var", "log", "sitetrace"), "sitetrace", start)
	assert.Equal(t, filepath.Join("/var", "log", "sitetrace", "sitetrace.20260823_090455.log"), abs)
}

func TestLogFilePathSortsByStartTime(t *testing.T) {
	earlier := LogFilePath("logs", "sitetrace", time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC))
	later := LogFilePath("logs", "sitetrace", time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC))
	assert.Less(t, earlier, later)
}
