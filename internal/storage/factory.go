// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/wytcherly/foreman/internal/config"
	"github.com/wytcherly/foreman/internal/logging"
	gormstorage "github.com/wytcherly/foreman/internal/storage/gorm"
	"github.com/wytcherly/foreman/internal/storage/memory"
	sqlitestorage "github.com/wytcherly/foreman/internal/storage/sqlite"
	"github.com/wytcherly/foreman/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, logManager *logging.SlogManager) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return gormstorage.New(gormstorage.Dependencies{LogManager: logManager}), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.DumpPath,
		}, logManager)
	case "memory":
		return memory.New(cfg.Memory), nil
	case "websocket":
		return websocket.New(websocket.Config{URL: cfg.WebSocket.URL, Secret: cfg.WebSocket.Secret}), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
