package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/sitetrace/extension/internal/config"
	"github.com/sitetrace/extension/internal/geo"
	"github.com/sitetrace/extension/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() (*core.Session, *core.SiteModel) {
	return &core.Session{
			SessionKey:       "abcd-1234",
			Operator:         "jdoe",
			DeviceModel:      "Tab-S",
			ServiceVersion:   "1.57",
			ExtensionVersion: "0.9.0",
			StartTime:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			EndTime:          time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
			Tag:              "Survey",
		}, &core.SiteModel{
			Name:     "North Tower",
			Revision: "rev-42",
			Units:    "m",
		}
}

func TestAddAnnotationAssignsIDs(t *testing.T) {
	b := New(config.MemoryConfig{}, nil)
	session, site := testSession()
	require.NoError(t, b.StartSession(session, site))

	a1 := &core.Annotation{Text: "first"}
	a2 := &core.Annotation{Text: "second"}
	require.NoError(t, b.AddAnnotation(a1))
	require.NoError(t, b.AddAnnotation(a2))

	assert.Equal(t, uint(1), a1.ID)
	assert.Equal(t, uint(2), a2.ID)
}

func TestToggleAnnotation(t *testing.T) {
	b := New(config.MemoryConfig{}, nil)
	session, site := testSession()
	require.NoError(t, b.StartSession(session, site))

	a := &core.Annotation{Text: "pin", Open: true}
	require.NoError(t, b.AddAnnotation(a))

	a.Open = false
	require.NoError(t, b.ToggleAnnotation(a))

	stored, ok := b.GetAnnotation(a.ID)
	require.True(t, ok)
	assert.False(t, stored.Open)
}

func TestStartSessionResetsState(t *testing.T) {
	b := New(config.MemoryConfig{}, nil)
	session, site := testSession()
	require.NoError(t, b.StartSession(session, site))

	require.NoError(t, b.AddAnnotation(&core.Annotation{Text: "stale"}))
	require.NoError(t, b.RecordTrackedPose(&core.TrackedPose{Timestamp: 1}))

	require.NoError(t, b.StartSession(session, site))
	assert.Equal(t, 0, b.TrailLen())

	fresh := &core.Annotation{Text: "fresh"}
	require.NoError(t, b.AddAnnotation(fresh))
	assert.Equal(t, uint(1), fresh.ID)
}

func TestEndSessionWithoutStartIsNoop(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()}, nil)
	require.NoError(t, b.EndSession())
	assert.Empty(t, b.GetExportedFilePath())
}

func TestExportUncompressed(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: false}, nil)
	session, site := testSession()
	require.NoError(t, b.StartSession(session, site))

	require.NoError(t, b.SaveAlignment(&core.Alignment{Scale: 2.0, Angle: 0.5}))
	require.NoError(t, b.RecordCalibrationPoint(&core.CalibrationPoint{
		Stage: "await_model_point_1",
		Point: r3.Vector{X: 1, Y: 0, Z: 2},
	}))
	require.NoError(t, b.AddAnnotation(&core.Annotation{Text: "crack", Open: true}))
	require.NoError(t, b.RecordTrackedPose(&core.TrackedPose{
		Timestamp: 1.5,
		Position:  r3.Vector{X: 1, Y: 1.6, Z: -2},
		Yaw:       0.1,
		Clutched:  true,
	}))
	require.NoError(t, b.RecordTelemetryEvent(&core.TelemetryEvent{
		Name:   "pose_rate",
		Values: map[string]any{"hz": 29.7},
	}))

	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "North_Tower_20260301_090000.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var export SessionExport
	require.NoError(t, json.Unmarshal(raw, &export))

	assert.Equal(t, "abcd-1234", export.SessionKey)
	assert.Equal(t, "North Tower", export.SiteName)
	assert.Len(t, export.Alignments, 1)
	assert.Equal(t, 2.0, export.Alignments[0].Scale)
	assert.Len(t, export.CalibrationPoints, 1)
	assert.Len(t, export.Annotations, 1)
	assert.Equal(t, "crack", export.Annotations[0].Text)
	require.Len(t, export.Trail, 1)
	assert.Equal(t, 1.5, export.Trail[0][0])
	assert.Len(t, export.Telemetry, 1)
}

func TestExportGzipped(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true}, nil)
	session, site := testSession()
	require.NoError(t, b.StartSession(session, site))
	require.NoError(t, b.RecordTrackedPose(&core.TrackedPose{Timestamp: 2}))
	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.Equal(t, ".gz", filepath.Ext(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var export SessionExport
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	assert.Len(t, export.Trail, 1)
}

func TestExportGeoreferencedTrail(t *testing.T) {
	ref, err := geo.NewReference(config.GeoConfig{
		Enabled:   true,
		Latitude:  48.2082,
		Longitude: 16.3738,
	})
	require.NoError(t, err)

	b := New(config.MemoryConfig{}, ref)
	session, site := testSession()
	require.NoError(t, b.StartSession(session, site))
	require.NoError(t, b.RecordTrackedPose(&core.TrackedPose{Position: r3.Vector{X: 0, Z: 0}}))
	require.NoError(t, b.RecordTrackedPose(&core.TrackedPose{Position: r3.Vector{X: 5, Z: -5}}))

	export := b.buildExport()
	assert.True(t, strings.HasPrefix(export.TrailMap, "LINESTRING"))
}

func TestExportTrailMapNeedsTwoPoints(t *testing.T) {
	ref, err := geo.NewReference(config.GeoConfig{Enabled: true, Latitude: 48.2, Longitude: 16.4})
	require.NoError(t, err)

	b := New(config.MemoryConfig{}, ref)
	session, site := testSession()
	require.NoError(t, b.StartSession(session, site))
	require.NoError(t, b.RecordTrackedPose(&core.TrackedPose{}))

	export := b.buildExport()
	assert.Empty(t, export.TrailMap)
}

func TestGetExportMetadata(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()}, nil)
	session, site := testSession()
	require.NoError(t, b.StartSession(session, site))

	meta := b.GetExportMetadata()
	assert.Equal(t, "North Tower", meta.SiteName)
	assert.Equal(t, "abcd-1234", meta.SessionKey)
	assert.Equal(t, "Survey", meta.Tag)
	assert.Equal(t, 1800.0, meta.DurationSeconds)
}

func TestAnnotationExportOrderedByID(t *testing.T) {
	b := New(config.MemoryConfig{}, nil)
	session, site := testSession()
	require.NoError(t, b.StartSession(session, site))

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, b.AddAnnotation(&core.Annotation{Text: text}))
	}

	export := b.buildExport()
	require.Len(t, export.Annotations, 3)
	assert.Equal(t, "a", export.Annotations[0].Text)
	assert.Equal(t, "c", export.Annotations[2].Text)
}
