package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadFrom writes content as the config file in a temp dir and loads it.
func loadFrom(t *testing.T, content string) {
	t.Helper()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sitetrace.cfg.json"), []byte(content), 0644))
	require.NoError(t, Load(dir))
}

func TestLoadReadsFileValues(t *testing.T) {
	loadFrom(t, `{
		"logLevel": "debug",
		"siteName": "North Tower",
		"storage": { "db": { "host": "10.0.0.1", "port": "5433" } }
	}`)

	assert.Equal(t, "debug", GetString("logLevel"))
	assert.Equal(t, "North Tower", GetString("siteName"))
	assert.Equal(t, "10.0.0.1", GetString("storage.db.host"))
	assert.Equal(t, "5433", GetString("storage.db.port"))
}

func TestLoadDefaults(t *testing.T) {
	loadFrom(t, `{}`)

	defaults := map[string]any{
		"logLevel":                      "info",
		"logsDir":                       "./sitetracelogs",
		"defaultTag":                    "Survey",
		"source.type":                   "websocket",
		"source.url":                    "ws://localhost:8040/stream",
		"source.broker":                 "tcp://localhost:1883",
		"loop.frameRateHz":              30,
		"calibration.debounceMs":        500,
		"annotation.tolerance":          0.25,
		"storage.type":                  "memory",
		"storage.memory.outputDir":      "./sessions",
		"storage.memory.compressOutput": true,
		"storage.db.driver":             "sqlite",
		"api.serverUrl":                 "http://localhost:5000",
		"influx.enabled":                false,
		"graylog.enabled":               false,
		"graylog.address":               "localhost:12201",
		"geo.enabled":                   false,
		"otel.enabled":                  false,
		"otel.serviceName":              "sitetrace-extension",
		"otel.insecure":                 true,
	}
	for key, want := range defaults {
		assert.EqualValues(t, want, viper.Get(key), "default for %s", key)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestTypedGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("k.str", "v")
	viper.Set("k.int", 42)
	viper.Set("k.bool", true)
	viper.Set("k.float", 1.5)

	assert.Equal(t, "v", GetString("k.str"))
	assert.Equal(t, 42, GetInt("k.int"))
	assert.True(t, GetBool("k.bool"))
	assert.Equal(t, 1.5, GetFloat("k.float"))
}

func TestGetStorageConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		loadFrom(t, `{}`)

		cfg := GetStorageConfig()
		assert.Equal(t, "memory", cfg.Type)
		assert.Equal(t, "./sessions", cfg.Memory.OutputDir)
		assert.True(t, cfg.Memory.CompressOutput)
		assert.Equal(t, "sqlite", cfg.DB.Driver)
		assert.Equal(t, "./sitetrace.db", cfg.DB.Path)
	})

	t.Run("override", func(t *testing.T) {
		loadFrom(t, `{
			"storage": {
				"type": "gorm",
				"memory": { "outputDir": "/tmp/out", "compressOutput": false },
				"db": { "driver": "postgres", "host": "db.example.com" }
			}
		}`)

		cfg := GetStorageConfig()
		assert.Equal(t, "gorm", cfg.Type)
		assert.Equal(t, "/tmp/out", cfg.Memory.OutputDir)
		assert.False(t, cfg.Memory.CompressOutput)
		assert.Equal(t, "postgres", cfg.DB.Driver)
		assert.Equal(t, "db.example.com", cfg.DB.Host)
	})
}

func TestGetGeoConfig(t *testing.T) {
	loadFrom(t, `{
		"geo": { "enabled": true, "latitude": 52.52, "longitude": 13.405, "gridYaw": 0.1 }
	}`)

	gc := GetGeoConfig()
	assert.True(t, gc.Enabled)
	assert.InDelta(t, 52.52, gc.Latitude, 1e-9)
	assert.InDelta(t, 13.405, gc.Longitude, 1e-9)
	assert.InDelta(t, 0.1, gc.GridYaw, 1e-9)
}

func TestGetOTelConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		loadFrom(t, `{}`)

		oc := GetOTelConfig()
		assert.False(t, oc.Enabled)
		assert.Equal(t, "sitetrace-extension", oc.ServiceName)
		assert.Equal(t, 5*time.Second, oc.BatchTimeout)
		assert.Empty(t, oc.Endpoint)
		assert.True(t, oc.Insecure)
	})

	t.Run("override", func(t *testing.T) {
		loadFrom(t, `{
			"otel": {
				"enabled": true,
				"serviceName": "my-service",
				"batchTimeout": "30s",
				"endpoint": "localhost:4317",
				"insecure": false
			}
		}`)

		oc := GetOTelConfig()
		assert.True(t, oc.Enabled)
		assert.Equal(t, "my-service", oc.ServiceName)
		assert.Equal(t, 30*time.Second, oc.BatchTimeout)
		assert.Equal(t, "localhost:4317", oc.Endpoint)
		assert.False(t, oc.Insecure)
	})
}
