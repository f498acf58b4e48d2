package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// DBConfig holds relational storage backend settings. Driver selects the
// dialect: "sqlite" uses Path, "postgres" uses the host fields.
type DBConfig struct {
	Driver   string `json:"driver" mapstructure:"driver"`
	Path     string `json:"path" mapstructure:"path"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// WebsocketConfig holds live streaming backend settings
type WebsocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	DB        DBConfig        `json:"db" mapstructure:"db"`
	Websocket WebsocketConfig `json:"websocket" mapstructure:"websocket"`
}

// GeoConfig holds the optional site georeference. When Enabled, aligned
// world positions are also exported as projected map coordinates.
type GeoConfig struct {
	Enabled   bool    `json:"enabled" mapstructure:"enabled"`
	Latitude  float64 `json:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" mapstructure:"longitude"`
	GridYaw   float64 `json:"gridYaw" mapstructure:"gridYaw"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./sitetracelogs")
	viper.SetDefault("siteName", "Unnamed site")
	viper.SetDefault("siteRevision", "")
	viper.SetDefault("siteModelPath", "")
	viper.SetDefault("defaultTag", "Survey")
	viper.SetDefault("operator", "")
	viper.SetDefault("deviceModel", "")

	viper.SetDefault("source.type", "websocket")
	viper.SetDefault("source.url", "ws://localhost:8040/stream")
	viper.SetDefault("source.secret", "")
	viper.SetDefault("source.broker", "tcp://localhost:1883")
	viper.SetDefault("source.clientId", "sitetrace-extension")
	viper.SetDefault("source.replayPath", "")
	viper.SetDefault("source.replaySpeed", 1.0)

	viper.SetDefault("loop.frameRateHz", 30)

	viper.SetDefault("tracker.useAreaMap", false)

	viper.SetDefault("calibration.debounceMs", 500)
	viper.SetDefault("annotation.tolerance", 0.25)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.db.driver", "sqlite")
	viper.SetDefault("storage.db.path", "./sitetrace.db")
	viper.SetDefault("storage.db.host", "localhost")
	viper.SetDefault("storage.db.port", "5432")
	viper.SetDefault("storage.db.username", "postgres")
	viper.SetDefault("storage.db.password", "postgres")
	viper.SetDefault("storage.db.database", "sitetrace")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5001/record")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("geo.enabled", false)
	viper.SetDefault("geo.latitude", 0.0)
	viper.SetDefault("geo.longitude", 0.0)
	viper.SetDefault("geo.gridYaw", 0.0)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "sitetrace-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "sitetrace-extension")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetConfigName("sitetrace.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetStorageConfig assembles the storage section into a typed config.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		DB: DBConfig{
			Driver:   viper.GetString("storage.db.driver"),
			Path:     viper.GetString("storage.db.path"),
			Host:     viper.GetString("storage.db.host"),
			Port:     viper.GetString("storage.db.port"),
			Username: viper.GetString("storage.db.username"),
			Password: viper.GetString("storage.db.password"),
			Database: viper.GetString("storage.db.database"),
		},
		Websocket: WebsocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetGeoConfig assembles the geo section into a typed config.
func GetGeoConfig() GeoConfig {
	return GeoConfig{
		Enabled:   viper.GetBool("geo.enabled"),
		Latitude:  viper.GetFloat64("geo.latitude"),
		Longitude: viper.GetFloat64("geo.longitude"),
		GridYaw:   viper.GetFloat64("geo.gridYaw"),
	}
}

// GetOTelConfig assembles the otel section into a typed config.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float64 config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}
