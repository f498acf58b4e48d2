// Package influx pushes telemetry and performance metrics to InfluxDB.
// When the server is unreachable, points are spooled to a gzipped
// line-protocol file instead so a site visit without connectivity still
// yields metrics.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/sitetrace/extension/internal/model"
	"github.com/sitetrace/extension/pkg/core"
)

// Bucket names for the extension's metric streams.
const (
	BucketSessionTelemetry     = "session_telemetry"
	BucketExtensionPerformance = "extension_performance"
	BucketDevicePerformance    = "device_performance"
)

const bucketRetention = 60 * 60 * 24 * 90 // 90 days, in seconds

// DefaultBucketNames are the InfluxDB buckets ensured at connect time.
var DefaultBucketNames = []string{
	BucketSessionTelemetry,
	BucketExtensionPerformance,
	BucketDevicePerformance,
	"Telegraf",
}

// Manager owns the client and one async write API per bucket.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string
}

func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: DefaultBucketNames,
		Logger:      log,
		BackupPath:  backupPath,
	}
}

// Connect builds the client and pings the server. An unreachable server is
// not an error: the manager switches to the backup spool.
func (m *Manager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influxdb.Enabled is false")
	}

	serverURL := fmt.Sprintf("%s://%s:%s",
		viper.GetString("influx.protocol"),
		viper.GetString("influx.host"),
		viper.GetString("influx.port"))

	m.Client = influxdb2.NewClientWithOptions(
		serverURL,
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().SetBatchSize(2500).SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(context.Background())
	if err != nil || !running {
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
		return m.openBackupSpool()
	}

	if err := m.ensureOrgAndBuckets(); err != nil {
		return err
	}
	m.createWriters()
	m.IsValid = true
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

// openBackupSpool opens the gzipped line-protocol fallback file.
func (m *Manager) openBackupSpool() error {
	if m.BackupWriter != nil {
		return nil
	}
	m.Logger.Info().Str("backupPath", m.BackupPath).
		Msg("Failed to initialize InfluxDB client, writing to backup file")

	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) ensureOrgAndBuckets() error {
	ctx := context.Background()
	orgName := viper.GetString("influx.org")
	orgsAPI := m.Client.OrganizationsAPI()

	if _, err := orgsAPI.FindOrganizationByName(ctx, orgName); err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		if _, err := orgsAPI.CreateOrganizationWithName(ctx, orgName); err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}
	org, err := orgsAPI.FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Error().Err(err).Str("org", orgName).Msg("Error getting organization")
		return err
	}

	bucketsAPI := m.Client.BucketsAPI()
	expire := domain.RetentionRuleTypeExpire
	for _, bucket := range m.BucketNames {
		if _, err := bucketsAPI.FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")
		_, err := bucketsAPI.CreateBucketWithName(ctx, org, bucket, domain.RetentionRule{
			Type:         &expire,
			EverySeconds: bucketRetention,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

// createWriters builds one async write API per bucket and drains each
// error channel into the log.
func (m *Manager) createWriters() {
	orgName := viper.GetString("influx.org")
	for _, bucket := range m.BucketNames {
		writer := m.Client.WriteAPI(orgName, bucket)
		m.Writers[bucket] = writer

		go func(bucket string, errCh <-chan error) {
			for writeErr := range errCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucket).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, writer.Errors())
	}
	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint sends a point to its bucket, or spools it as line protocol
// when the client is down.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		writer, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		writer.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending writes and shuts down the client or the spool.
func (m *Manager) Close() error {
	for _, writer := range m.Writers {
		writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		if err := m.BackupWriter.Close(); err != nil {
			return fmt.Errorf("error closing InfluxDB backup writer: %w", err)
		}
	}
	return nil
}

// TelemetryPoint converts a session telemetry event into an influx point
// for the session_telemetry bucket. Values keep their JSON types: numbers
// become float fields, everything else strings.
func TelemetryPoint(sessionKey string, e *core.TelemetryEvent) (bucket string, point *influxdb2_write.Point) {
	point = influxdb2_write.NewPointWithMeasurement(e.Name).
		AddTag("sessionKey", sessionKey).
		SetTime(e.Time)

	for name, value := range e.Values {
		switch v := value.(type) {
		case float64:
			point.AddField(name, v)
		case int:
			point.AddField(name, float64(v))
		case bool:
			point.AddField(name, v)
		case string:
			point.AddField(name, v)
		default:
			point.AddField(name, fmt.Sprintf("%v", v))
		}
	}
	if len(e.Values) == 0 {
		point.AddField("count", 1)
	}

	return BucketSessionTelemetry, point
}

// PerformancePoint converts a performance snapshot into an influx point
// for the extension_performance bucket.
func PerformancePoint(sessionKey string, perf model.Performance) (bucket string, point *influxdb2_write.Point) {
	point = influxdb2_write.NewPointWithMeasurement("write_queues").
		AddTag("sessionKey", sessionKey).
		AddField("trackedPoses", int(perf.QueueLengths.TrackedPoses)).
		AddField("annotations", int(perf.QueueLengths.Annotations)).
		AddField("calibrationPoints", int(perf.QueueLengths.CalibrationPoints)).
		AddField("telemetryEvents", int(perf.QueueLengths.TelemetryEvents)).
		AddField("lastWriteDurationMs", float64(perf.LastWriteDurationMs)).
		SetTime(perf.Time)

	return BucketExtensionPerformance, point
}
