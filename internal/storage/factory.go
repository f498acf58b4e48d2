// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/sitetrace/extension/internal/config"
	"github.com/sitetrace/extension/internal/geo"
	"github.com/sitetrace/extension/internal/logging"
	gormstorage "github.com/sitetrace/extension/internal/storage/gorm"
	"github.com/sitetrace/extension/internal/storage/memory"
	"github.com/sitetrace/extension/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration. geoRef may be
// nil when the site is not georeferenced.
func NewBackend(cfg config.StorageConfig, logManager *logging.SlogManager, geoRef *geo.Reference) (Backend, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(cfg.Memory, geoRef), nil
	case "gorm", "postgres", "sqlite":
		dbCfg := cfg.DB
		if cfg.Type != "gorm" {
			dbCfg.Driver = cfg.Type
		}
		return gormstorage.New(gormstorage.Dependencies{
			Config:     dbCfg,
			LogManager: logManager,
			Geo:        geoRef,
		}), nil
	case "websocket":
		return websocket.New(websocket.Config{
			URL:    cfg.Websocket.URL,
			Secret: cfg.Websocket.Secret,
		}, logManager.Logger()), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
