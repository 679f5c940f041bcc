package safety

import (
	"fmt"

	"catsync-go/internal/catsync"
	"catsync-go/internal/config"
	"catsync-go/internal/database"
)

// NewSafetyStoreFromConfig creates a SafetyStore based on the config type.
// The "database" type keeps snapshots in the local SQLite database alongside
// the dataset, so db must be non-nil for it.
func NewSafetyStoreFromConfig(cfg config.SafetyConfig, db *database.SQLiteDatabase) (catsync.SafetyStore, error) {
	switch cfg.Type {
	case "database":
		if db == nil {
			return nil, fmt.Errorf("database safety store requires an open database")
		}
		return db, nil
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem safety store requires dir to be set")
		}
		return NewFileSystemStore(cfg.Dir)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown safety store type: %s", cfg.Type)
	}
}
