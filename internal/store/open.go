// internal/store/open.go
package store

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/idlabstudio/idlab-backend/internal/config"
	"github.com/idlabstudio/idlab-backend/internal/database"
)

// Open returns the store selected by STORE_DRIVER and a func that releases it.
func Open(cfg *config.Config) (Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		logrus.Warn("Using the in-memory store, records are lost on restart")
		return NewMemoryStore(), func() {}, nil
	case "postgres":
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db); err != nil {
			database.Close(db)
			return nil, nil, err
		}
	}

	return NewGormStore(db), func() { database.Close(db) }, nil
}
