// Package database opens the GORM connection for the storage backend. A
// dead Postgres never loses a session: the manager falls back to SQLite,
// in memory if no path is configured.
package database

import (
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/sitetrace/extension/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlitePragmas tune the fallback DB for write-heavy session recording.
var sqlitePragmas = []string{
	"PRAGMA user_version = 1;",
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA cache_size = -32000;",
	"PRAGMA temp_store = MEMORY;",
	"PRAGMA page_size = 32768;",
}

// Manager holds the open connection and remembers whether it ended up on
// the SQLite fallback.
type Manager struct {
	DB     *gorm.DB
	Logger zerolog.Logger

	cfg        config.DBConfig
	onFallback bool
	sqlitePath string
}

func NewManager(cfg config.DBConfig, log zerolog.Logger) *Manager {
	return &Manager{Logger: log, cfg: cfg}
}

// Connect opens the configured driver. Any Postgres failure, including a
// failed ping, drops down to SQLite.
func (m *Manager) Connect() error {
	if m.cfg.Driver == "sqlite" {
		return m.useSQLite()
	}

	db, err := openPostgres(m.cfg, m.Logger)
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
		return m.useSQLite()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		m.Logger.Error().Err(err).Msg("Failed to validate connection, trying SQLite")
		return m.useSQLite()
	}

	sqlDB.SetMaxOpenConns(10)
	m.DB = db
	m.Logger.Info().Msg("Connected to database")
	return nil
}

func (m *Manager) useSQLite() error {
	db, err := OpenSQLite(m.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open local SQLite DB: %w", err)
	}
	m.DB = db
	m.onFallback = true
	m.sqlitePath = m.cfg.Path
	if m.cfg.Path != "" {
		m.Logger.Info().Str("path", m.cfg.Path).Msg("Using local SQLite DB")
	} else {
		m.Logger.Info().Msg("Using in-memory SQLite DB with disk dump on close")
	}
	return nil
}

func openPostgres(cfg config.DBConfig, log zerolog.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
	log.Debug().Msgf("Connecting to Postgres DB at '%s'", dsn)

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// OpenSQLite opens a SQLite database at path, or in memory when path is
// empty. Used directly by backend tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		dsn = path
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

// InMemory reports whether the session lives only in memory and needs
// DumpMemoryDBToDisk to survive the process.
func (m *Manager) InMemory() bool {
	return m.onFallback && m.sqlitePath == ""
}

// DumpMemoryDBToDisk vacuums the in-memory database into a fresh file.
func DumpMemoryDBToDisk(db *gorm.DB, path string) error {
	if path == "" {
		return fmt.Errorf("sqlite file path not set")
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("error removing existing DB file: %w", err)
		}
	}
	if err := db.Exec("VACUUM INTO 'file:" + path + "';").Error; err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %w", err)
	}
	return nil
}
