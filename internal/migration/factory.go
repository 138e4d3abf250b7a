package migration

import (
	"fmt"

	appconfig "github.com/sourcelane/gateway/config"
)

// NewMigratorFromConfig builds a Migrator from the gateway's history-store
// DSN. Returns an error if no DSN is configured: migrations only make sense
// once the opt-in history store (see historystore.Open) is enabled.
func NewMigratorFromConfig(cfg *appconfig.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Datastore.HistoryDSN == "" {
		return nil, fmt.Errorf("datastore.history_dsn is not configured")
	}
	return NewMigrator(&Config{DatabaseURL: cfg.Datastore.HistoryDSN})
}

// NewMigratorFromURL builds a Migrator directly from a postgres DSN.
func NewMigratorFromURL(dbURL string) (*DefaultMigrator, error) {
	return NewMigrator(&Config{DatabaseURL: dbURL})
}
