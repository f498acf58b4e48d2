// Package monitor reports write-path health while a session records: queue
// depths and DB write latency, to a status file and a performance table.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sitetrace/extension/internal/logging"
	"github.com/sitetrace/extension/internal/model"
	"github.com/sitetrace/extension/internal/session"
)

const statusInterval = time.Second

// Stats exposes the write-path health of the relational backend.
type Stats interface {
	QueueLengths() model.QueueLengths
	GetDBWriteDuration() time.Duration
}

// Dependencies wires the monitor to the backend it watches.
type Dependencies struct {
	DB              *gorm.DB
	LogManager      *logging.SlogManager
	SessionContext  *session.Context
	Stats           Stats
	StatusDir       string
	IsDatabaseValid func() bool
}

// Service periodically snapshots backend health. Start and Stop are safe to
// call from any goroutine.
type Service struct {
	deps Dependencies

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
}

func NewService(deps Dependencies) *Service {
	return &Service{deps: deps, stopChan: make(chan struct{})}
}

// IsRunning reports whether the snapshot goroutine is alive.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus captures one health snapshot. The flags select which
// sections appear in the human-readable output; the Performance row always
// carries everything.
func (s *Service) GetProgramStatus(writeQueues, lastWrite bool) (output []string, perf model.Performance) {
	lengths := s.deps.Stats.QueueLengths()
	perf = model.Performance{
		Time:                time.Now(),
		SessionID:           s.deps.SessionContext.GetSession().ID,
		QueueLengths:        lengths,
		LastWriteDurationMs: float32(s.deps.Stats.GetDBWriteDuration().Milliseconds()),
	}

	if writeQueues {
		output = append(output, indentJSON(lengths))
	}
	if lastWrite {
		output = append(output, indentJSON(perf.LastWriteDurationMs))
	}
	return output, perf
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// Start launches the snapshot goroutine. Calling Start on a running service
// is a no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	go s.run(s.stopChan)
	return nil
}

// Stop terminates the snapshot goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}

func (s *Service) run(stop <-chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	logger := s.deps.LogManager.Logger()
	logger.Debug("Starting status monitor goroutine", "function", "monitor.run")

	statusFile, err := os.Create(filepath.Join(s.deps.StatusDir, "status.txt"))
	if err != nil {
		logger.Error("Error creating status file", "error", err)
	} else {
		defer statusFile.Close()
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		// nothing to report between sessions
		if s.deps.SessionContext.GetSession().ID == 0 {
			continue
		}

		lines, perf := s.GetProgramStatus(true, true)

		if statusFile != nil {
			statusFile.Truncate(0)
			statusFile.Seek(0, 0)
			for _, line := range lines {
				fmt.Fprintln(statusFile, line)
			}
		}

		if s.deps.IsDatabaseValid() {
			if err := s.deps.DB.Create(&perf).Error; err != nil {
				logger.Error("Error writing perf row to database", "error", err)
			}
		}
	}
}

// ValidateHypertables turns the named tables into TimescaleDB hypertables
// with compression. Keys are table names, values the columns compression
// segments by. Postgres only.
func (s *Service) ValidateHypertables(tables map[string][]string) error {
	for table, segmentBy := range tables {
		if s.hypertableExists(table) {
			s.log("INFO", "Table %s is already configured", table)
			continue
		}
		if err := s.createHypertable(table, segmentBy); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) hypertableExists(table string) bool {
	var found any
	s.deps.DB.Exec(
		`SELECT x.* FROM timescaledb_information.hypertables WHERE hypertable_name = ?`,
		table,
	).Scan(&found)
	return found != nil
}

func (s *Service) createHypertable(table string, segmentBy []string) error {
	steps := []struct {
		desc  string
		query string
		args  []any
	}{
		{
			desc: "create hypertable",
			query: fmt.Sprintf(
				`SELECT create_hypertable('%s', 'time', chunk_time_interval => interval '1 day', if_not_exists => true);`,
				table),
		},
		{
			desc: "enable compression",
			query: fmt.Sprintf(
				`ALTER TABLE %s SET (timescaledb.compress, timescaledb.compress_segmentby = ?);`,
				table),
			args: []any{strings.Join(segmentBy, ",")},
		},
		{
			desc: "set compression policy",
			query: fmt.Sprintf(
				`SELECT add_compression_policy('%s', compress_after => interval '14 day');`,
				table),
		},
	}

	for _, step := range steps {
		if err := s.deps.DB.Exec(step.query, step.args...).Error; err != nil {
			s.log("ERROR", "Failed to %s for %s: %s", step.desc, table, err)
			return err
		}
		s.log("INFO", "Hypertable %s: %s done", table, step.desc)
	}
	return nil
}

func (s *Service) log(level, format string, args ...any) {
	s.deps.LogManager.WriteLog("monitor", fmt.Sprintf(format, args...), level)
}
