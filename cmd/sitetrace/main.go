// cmd/sitetrace/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sitetrace/extension/internal/api"
	"github.com/sitetrace/extension/internal/config"
	"github.com/sitetrace/extension/internal/dispatcher"
	"github.com/sitetrace/extension/internal/influx"
	"github.com/sitetrace/extension/internal/logging"
	"github.com/sitetrace/extension/internal/loop"
	"github.com/sitetrace/extension/internal/model"
	"github.com/sitetrace/extension/internal/monitor"
	"github.com/sitetrace/extension/internal/recorder"
	"github.com/sitetrace/extension/internal/runtime"
	"github.com/sitetrace/extension/internal/sitemodel"
	"github.com/sitetrace/extension/internal/source"
	"github.com/sitetrace/extension/internal/storage"
	gormstorage "github.com/sitetrace/extension/internal/storage/gorm"
	"github.com/sitetrace/extension/internal/tracker"
	"github.com/sitetrace/extension/pkg/core"
)

// Set at build time via -ldflags
var (
	extensionVersion = "dev"
	buildDate        = "unknown"
)

func main() {
	configDir := flag.String("config", ".", "directory containing sitetrace.cfg.json")
	noConsole := flag.Bool("no-console", false, "disable the interactive control console")
	flag.Parse()

	if err := run(*configDir, !*noConsole); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configDir string, withConsole bool) error {
	rt, err := runtime.New(runtime.Options{
		ConfigDir:        configDir,
		ExtensionVersion: extensionVersion,
		BuildDate:        buildDate,
	})
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer rt.Close()

	logger := rt.LogManager.Logger()
	logger.Info("SiteTrace extension starting", "version", extensionVersion, "buildDate", buildDate)

	disp, err := dispatcher.New(logging.NewDispatcherLogger(rt.Logger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	backend := rt.Backend
	if rt.Influx != nil {
		backend = &influxTee{Backend: rt.Backend, rt: rt}
	}

	mover := tracker.NewDirectMover()
	svc := recorder.NewService(recorder.Dependencies{
		Backend:    backend,
		Tracker:    tracker.New(mover, core.DeviceFromOrigin),
		Rig:        mover,
		Surface:    loadSurface(rt.LogManager),
		LogManager: rt.LogManager,
		SessionCtx: rt.SessionCtx,
		Site: core.SiteModel{
			Name:      config.GetString("siteName"),
			Revision:  config.GetString("siteRevision"),
			Units:     "m",
			Latitude:  config.GetFloat("geo.latitude"),
			Longitude: config.GetFloat("geo.longitude"),
			GridYaw:   config.GetFloat("geo.gridYaw"),
		},
		Operator:            config.GetString("operator"),
		DeviceModel:         config.GetString("deviceModel"),
		DefaultTag:          config.GetString("defaultTag"),
		ServiceVersion:      "unknown",
		ExtensionVersion:    extensionVersion,
		CalibrationDebounce: time.Duration(config.GetInt("calibration.debounceMs")) * time.Millisecond,
		AnnotationTolerance: config.GetFloat("annotation.tolerance"),
	})
	svc.Attach(disp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if mon := startMonitor(rt); mon != nil {
		defer mon.Stop()
	}
	if rt.Influx != nil {
		if stats, ok := rt.Backend.(monitor.Stats); ok {
			go influxPerformanceLoop(ctx, rt, stats)
		}
	}

	slots := &source.Slots{}
	src, err := newSource(slots, rt)
	if err != nil {
		return err
	}

	hz := config.GetInt("loop.frameRateHz")
	interval := loop.DefaultInterval
	if hz > 0 {
		interval = time.Second / time.Duration(hz)
	}
	frameLoop := loop.New(interval, slots, disp, logger)
	if err := frameLoop.Start(ctx); err != nil {
		return fmt.Errorf("failed to start frame loop: %w", err)
	}
	defer frameLoop.Stop()

	// A missing pose source is fatal; there is nothing to record without one.
	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("pose source %q unavailable: %w", src.Name(), err)
	}
	defer src.Close()

	if err := disp.Lifecycle(dispatcher.LifecycleEvent{Kind: dispatcher.Connected, Timestamp: time.Now()}); err != nil {
		logger.Error("Connect handling failed", "error", err)
	}
	logger.Info("Recording from source", "source", src.Name())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	quit := make(chan struct{})
	if withConsole {
		go runConsole(disp, svc, rt, quit)
	}

	select {
	case <-sig:
		logger.Info("Received shutdown signal")
	case <-quit:
		logger.Info("Console requested shutdown")
	}

	if err := disp.Lifecycle(dispatcher.LifecycleEvent{Kind: dispatcher.Disconnected, Timestamp: time.Now()}); err != nil {
		logger.Error("Disconnect handling failed", "error", err)
	}

	uploadExport(rt)
	return nil
}

// loadSurface builds the hit-test surface for calibration and annotation
// taps. A missing or unreadable model is not fatal, taps fall back to a
// ground plane.
func loadSurface(log *logging.SlogManager) recorder.Surface {
	path := config.GetString("siteModelPath")
	if path == "" {
		log.WriteLog("loadSurface", "No site model configured, using ground plane surface", "WARN")
		return sitemodel.GroundPlane(500)
	}
	mesh, err := sitemodel.LoadOBJ(path)
	if err != nil {
		log.WriteLog("loadSurface", fmt.Sprintf("Failed to load site model, using ground plane surface: %v", err), "WARN")
		return sitemodel.GroundPlane(500)
	}
	log.WriteLog("loadSurface", fmt.Sprintf("Loaded site model %s (%d triangles)", path, mesh.Len()), "INFO")
	return mesh
}

// newSource builds the configured ingest transport.
func newSource(slots *source.Slots, rt *runtime.Context) (source.Source, error) {
	logger := rt.LogManager.Logger()
	switch kind := config.GetString("source.type"); kind {
	case "websocket":
		return source.NewWebSocketSource(config.GetString("source.url"), config.GetString("source.secret"), slots, logger), nil
	case "mqtt":
		return source.NewMQTTSource(config.GetString("source.broker"), config.GetString("source.clientId"), slots, logger), nil
	case "replay":
		return source.NewReplaySource(config.GetString("source.replayPath"), config.GetFloat("source.replaySpeed"), slots, logger), nil
	case "mock":
		return source.NewMockSource(33*time.Millisecond, 5, slots), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", kind)
	}
}

// startMonitor runs the status monitor when the backend has write queues to
// report on.
func startMonitor(rt *runtime.Context) *monitor.Service {
	gb, ok := rt.Backend.(*gormstorage.Backend)
	if !ok || gb.DB() == nil {
		return nil
	}

	mon := monitor.NewService(monitor.Dependencies{
		DB:              gb.DB(),
		LogManager:      rt.LogManager,
		SessionContext:  rt.SessionCtx,
		Stats:           gb,
		StatusDir:       config.GetString("logsDir"),
		IsDatabaseValid: gb.Ready,
	})

	if config.GetStorageConfig().DB.Driver == "postgres" {
		if err := mon.ValidateHypertables(map[string][]string{
			"tracked_poses":    {"session_id"},
			"telemetry_events": {"session_id"},
			"performances":     {"session_id"},
		}); err != nil {
			rt.LogManager.WriteLog("startMonitor", fmt.Sprintf("Hypertable validation failed: %v", err), "WARN")
		}
	}

	if err := mon.Start(); err != nil {
		rt.LogManager.WriteLog("startMonitor", fmt.Sprintf("Failed to start status monitor: %v", err), "WARN")
		return nil
	}
	return mon
}

// influxPerformanceLoop pushes queue depth snapshots to the
// extension_performance bucket while a session is open.
func influxPerformanceLoop(ctx context.Context, rt *runtime.Context, stats monitor.Stats) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess := rt.SessionCtx.GetSession()
			if sess == nil || sess.ID == 0 {
				continue
			}
			bucket, point := influx.PerformancePoint(sess.SessionKey, model.Performance{
				Time:                time.Now(),
				SessionID:           sess.ID,
				QueueLengths:        stats.QueueLengths(),
				LastWriteDurationMs: float32(stats.GetDBWriteDuration().Milliseconds()),
			})
			if err := rt.Influx.WritePoint(ctx, bucket, point); err != nil {
				rt.LogManager.WriteLog("influxPerformanceLoop", fmt.Sprintf("Failed to write performance point: %v", err), "WARN")
			}
		}
	}
}

// uploadExport pushes the last exported session file to the web frontend when
// both an export and a server URL are configured.
func uploadExport(rt *runtime.Context) {
	serverURL := config.GetString("api.serverUrl")
	if serverURL == "" {
		return
	}
	uploadable, ok := rt.Backend.(storage.Uploadable)
	if !ok {
		return
	}
	path := uploadable.GetExportedFilePath()
	if path == "" {
		return
	}

	client := api.New(serverURL, config.GetString("api.apiKey"))
	if err := client.Healthcheck(); err != nil {
		rt.LogManager.WriteLog("uploadExport", fmt.Sprintf("Web frontend unreachable, keeping local export %s: %v", path, err), "WARN")
		return
	}
	if err := client.Upload(path, uploadable.GetExportMetadata()); err != nil {
		rt.LogManager.WriteLog("uploadExport", fmt.Sprintf("Upload failed, keeping local export %s: %v", path, err), "ERROR")
		return
	}
	rt.LogManager.WriteLog("uploadExport", fmt.Sprintf("Uploaded session export %s", path), "INFO")
}

// influxTee mirrors telemetry events into InfluxDB on their way to the
// storage backend.
type influxTee struct {
	storage.Backend
	rt *runtime.Context
}

func (t *influxTee) RecordTelemetryEvent(e *core.TelemetryEvent) error {
	if sess := t.rt.SessionCtx.GetSession(); sess != nil && sess.SessionKey != "" {
		bucket, point := influx.TelemetryPoint(sess.SessionKey, e)
		if err := t.rt.Influx.WritePoint(context.Background(), bucket, point); err != nil {
			t.rt.LogManager.WriteLog("influxTee", fmt.Sprintf("Failed to write telemetry point: %v", err), "WARN")
		}
	}
	return t.Backend.RecordTelemetryEvent(e)
}
