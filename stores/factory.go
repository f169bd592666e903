package stores

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

// NewStore creates a durable store from configuration. Postgres is the
// production backend; sqlite serves single-node deployments and tests
// (without vector search).
func NewStore(cfg *StoreConfig, logger *zap.Logger) (*DurableStore, error) {
	switch cfg.Driver {
	case "postgres":
		return NewDurableStore(postgres.Open(cfg.DSN), logger)
	case "sqlite":
		return NewDurableStore(sqlite.Open(cfg.DSN), logger)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
