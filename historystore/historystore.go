// Package historystore implements the opt-in query-history store
// (SPEC_FULL.md supplemental feature, DESIGN.md "no raw storage by
// default"): recording each completed search so an operator can audit or
// replay past queries. Grounded on cmd/agentflow/main.go's openDatabase
// gorm/postgres wiring — the only database driver this module pulls in.
package historystore

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sourcelane/gateway/internal/database"
)

// Entry is one recorded search (spec.md §3 Query Request/Response,
// trimmed to what an audit trail needs).
type Entry struct {
	ID            uint   `gorm:"primarykey"`
	TraceID       string `gorm:"index"`
	Query         string
	Answer        string
	ProviderID    string
	ModelID       string
	SourceCount   int
	TotalLatencyMS int64
	CreatedAt     time.Time
}

// Store persists completed searches. A nil *Store is valid and silently
// drops every Record call — history is disabled unless a DSN is
// configured (spec.md never requires raw query storage).
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// Open connects to dsn, migrates the Entry table, and wraps the
// resulting connection in a pool manager with health checks and
// transaction retry for transient failures (deadlocks, serialization
// conflicts, dropped connections). An empty dsn is not an error: callers
// get a nil *Store, and Record becomes a no-op.
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}

	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), logger)
	if err != nil {
		return nil, err
	}

	return &Store{pool: pool, logger: logger.With(zap.String("component", "history_store"))}, nil
}

// Record persists one completed search. Failures are logged, not
// returned — history is an audit convenience, never a reason to fail a
// search request that already succeeded.
func (s *Store) Record(ctx context.Context, e Entry) {
	if s == nil {
		return
	}
	err := s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Create(&e).Error
	})
	if err != nil {
		s.logger.Warn("failed to record search history", zap.Error(err), zap.String("trace_id", e.TraceID))
	}
}

// Close releases the underlying connection pool. A nil *Store is valid.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.pool.Close()
}
