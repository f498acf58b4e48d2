package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitetrace/extension/internal/config"
)

func TestConnectSQLiteInMemory(t *testing.T) {
	m := NewManager(config.DBConfig{Driver: "sqlite"}, zerolog.Nop())
	require.NoError(t, m.Connect())
	require.NotNil(t, m.DB)
	assert.True(t, m.InMemory())
}

func TestConnectSQLiteOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	m := NewManager(config.DBConfig{Driver: "sqlite", Path: path}, zerolog.Nop())
	require.NoError(t, m.Connect())
	assert.False(t, m.InMemory(), "a file-backed DB needs no dump")
}

func TestPostgresFailureFallsBackToSQLite(t *testing.T) {
	m := NewManager(config.DBConfig{
		Driver: "postgres",
		Host:   "127.0.0.1",
		Port:   "1", // nothing listens here
	}, zerolog.Nop())

	require.NoError(t, m.Connect(), "fallback must keep the session recordable")
	assert.True(t, m.InMemory())
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	m := NewManager(config.DBConfig{Driver: "sqlite"}, zerolog.Nop())
	require.NoError(t, m.Connect())

	target := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, m.DB.Exec("CREATE TABLE poses (id INTEGER PRIMARY KEY);").Error)
	require.NoError(t, DumpMemoryDBToDisk(m.DB, target))
	assert.FileExists(t, target)

	assert.Error(t, DumpMemoryDBToDisk(m.DB, ""), "empty path is rejected")
}
