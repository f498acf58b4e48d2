package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNames(t *testing.T) {
	want := map[string]interface{ TableName() string }{
		"extension_infos":    &ExtensionInfo{},
		"sites":              &Site{},
		"sessions":           &Session{},
		"alignments":         &Alignment{},
		"calibration_points": &CalibrationPoint{},
		"annotations":        &Annotation{},
		"tracked_poses":      &TrackedPose{},
		"telemetry_events":   &TelemetryEvent{},
		"performances":       &Performance{},
	}
	for table, m := range want {
		assert.Equal(t, table, m.TableName())
	}
}

func TestDatabaseModelsCoversAllTables(t *testing.T) {
	require.Len(t, DatabaseModels, 9)
	for _, m := range DatabaseModels {
		_, ok := m.(interface{ TableName() string })
		assert.True(t, ok, "%T must declare a table name", m)
	}
}
