// internal/runtime/runtime.go
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"

	"github.com/sitetrace/extension/internal/config"
	"github.com/sitetrace/extension/internal/geo"
	"github.com/sitetrace/extension/internal/influx"
	"github.com/sitetrace/extension/internal/logging"
	"github.com/sitetrace/extension/internal/otel"
	"github.com/sitetrace/extension/internal/session"
	"github.com/sitetrace/extension/internal/storage"
)

const extensionName = "sitetrace"

// Options configure process construction.
type Options struct {
	ConfigDir        string
	ExtensionVersion string
	BuildDate        string
}

// Context owns the process-wide services: logging, telemetry, storage and
// the current session. Build one with New at startup and Close it on exit.
type Context struct {
	ExtensionVersion string
	BuildDate        string
	StartTime        time.Time

	LogManager *logging.SlogManager
	Logger     zerolog.Logger
	OTel       *otel.Provider
	Influx     *influx.Manager
	Geo        *geo.Reference
	Backend    storage.Backend
	SessionCtx *session.Context

	logFile *os.File
}

// New builds the process context in dependency order: config, log file,
// OTel, structured logging, InfluxDB, georeference and finally the storage
// backend. Logging goes to init.log in the config directory until the
// config names a logs directory.
func New(opts Options) (*Context, error) {
	c := &Context{
		ExtensionVersion: opts.ExtensionVersion,
		BuildDate:        opts.BuildDate,
		StartTime:        time.Now(),
		LogManager:       logging.NewSlogManager(),
		SessionCtx:       session.NewContext(),
	}

	initFile, err := os.Create(filepath.Join(opts.ConfigDir, "init.log"))
	if err != nil {
		c.LogManager.Setup(nil, "info", nil)
		c.LogManager.WriteLog("runtime.New", fmt.Sprintf("Failed to create init log: %v", err), "WARN")
	} else {
		c.LogManager.Setup(initFile, "info", nil)
	}

	if err := config.Load(opts.ConfigDir); err != nil {
		c.LogManager.WriteLog("runtime.New", fmt.Sprintf("Failed to load config, using defaults: %v", err), "WARN")
	} else {
		c.LogManager.WriteLog("runtime.New", "Loaded config", "INFO")
	}

	logsDir := config.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
	}

	// Rotate a leftover file from a previous run before appending
	logPath := logging.LogFilePath(logsDir, extensionName, c.StartTime)
	if _, err := os.Stat(logPath); err == nil {
		os.Rename(logPath, logPath+".old")
	}
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	c.logFile = logFile

	otelCfg := config.GetOTelConfig()
	provider, err := otel.New(otel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	c.OTel = provider

	var sink io.Writer = logFile
	if config.GetBool("graylog.enabled") {
		gelfWriter, err := gelf.NewWriter(config.GetString("graylog.address"))
		if err != nil {
			c.LogManager.WriteLog("runtime.New", fmt.Sprintf("Failed to connect GELF writer: %v", err), "WARN")
		} else {
			sink = io.MultiWriter(logFile, gelfWriter)
		}
	}

	// Every record carries the current session identity
	c.LogManager.SetContextProvider(func() []slog.Attr {
		var attrs []slog.Attr
		if sess := c.SessionCtx.GetSession(); sess != nil && sess.SessionKey != "" {
			attrs = append(attrs,
				slog.Uint64("sessionID", uint64(sess.ID)),
				slog.String("sessionKey", sess.SessionKey))
		}
		if site := c.SessionCtx.GetSite(); site != nil {
			attrs = append(attrs, slog.String("site", site.Name))
		}
		return attrs
	})

	level := config.GetString("logLevel")
	c.LogManager.Setup(sink, level, provider.LoggerProvider())
	c.Logger = newZerolog(sink, level)
	if initFile != nil {
		initFile.Close()
	}
	c.LogManager.WriteLog("runtime.New", fmt.Sprintf("Logging to %s", logPath), "INFO")

	if config.GetBool("influx.enabled") {
		manager := influx.NewManager(c.Logger, filepath.Join(logsDir, "influx_backup.log.gzip"))
		if err := manager.Connect(); err != nil {
			c.LogManager.WriteLog("runtime.New", fmt.Sprintf("Failed to connect to InfluxDB: %v", err), "WARN")
		} else {
			c.Influx = manager
		}
	}

	geoRef, err := geo.NewReference(config.GetGeoConfig())
	if err != nil {
		return nil, fmt.Errorf("invalid site georeference: %w", err)
	}
	c.Geo = geoRef

	backend, err := storage.NewBackend(config.GetStorageConfig(), c.LogManager, geoRef)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	c.Backend = backend

	return c, nil
}

// Close shuts down services in reverse construction order. The first error
// is returned, later steps still run.
func (c *Context) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.Backend != nil {
		record(c.Backend.Close())
	}
	if c.Influx != nil {
		record(c.Influx.Close())
	}
	if c.LogManager != nil {
		record(c.LogManager.Flush(ctx))
	}
	if c.OTel != nil {
		record(c.OTel.Flush(ctx))
		record(c.OTel.Shutdown(ctx))
	}
	if c.logFile != nil {
		record(c.logFile.Close())
	}
	return firstErr
}

func newZerolog(file io.Writer, level string) zerolog.Logger {
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	mlw := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		},
		zerolog.ConsoleWriter{
			Out:        file,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		},
	)

	return zerolog.New(mlw).Level(zerologLevel(level)).With().Timestamp().Logger()
}

func zerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
