// Package logging wires slog to the extension's sinks: stdout, the session
// log file, and the OTel log bridge when telemetry is enabled.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// otelScopeName identifies this instrumentation scope on bridged records.
const otelScopeName = "sitetrace-extension"

// osStdout is swapped out by tests that capture console output.
var osStdout = os.Stdout

// SlogManager owns the process logger. Setup may be called more than once;
// startup logs to an init file until the config names the real logs dir.
type SlogManager struct {
	logger          *slog.Logger
	logProvider     *sdklog.LoggerProvider
	contextProvider ContextProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// utcTimestamps rewrites record times as UTC RFC3339 so file and console
// output match the timestamps stored in the database.
func utcTimestamps(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	t, ok := a.Value.Any().(time.Time)
	if !ok {
		return a
	}
	return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339))
}

// Setup (re)builds the logger. file may be nil (console only) and provider
// may be nil (no OTel export).
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	m.logProvider = provider

	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: utcTimestamps,
	}

	sinks := []slog.Handler{slog.NewTextHandler(osStdout, opts)}
	if file != nil {
		sinks = append(sinks, slog.NewTextHandler(file, opts))
	}
	if provider != nil {
		sinks = append(sinks, otelslog.NewHandler(otelScopeName, otelslog.WithLoggerProvider(provider)))
	}

	var h slog.Handler = newFanout(sinks...)
	if m.contextProvider != nil {
		h = stampWith(h, m.contextProvider)
	}

	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", level)
}

// SetContextProvider installs the per-record attribute source. Takes effect
// on the next Setup call.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.contextProvider = p
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces export of any buffered OTel records.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}

// WriteLog records a message tagged with the originating function. Level
// strings are the config-file spellings (DEBUG, INFO, WARN, ERROR).
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m.logger == nil {
		return
	}
	m.logger.Log(context.Background(), parseLevel(level), data, "function", functionName)
}
