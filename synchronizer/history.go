package synchronizer

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// SyncRun is a durable record of one completed Synchronizer run,
// persisted when a PostgresHistory is attached.
type SyncRun struct {
	gorm.Model
	RuleName        string
	StartedAt       time.Time
	DurationMillis  int64
	Result          string
	ItemsConsidered int
	ItemsApplied    int
	ItemsVetoed     int
	ItemsDeferred   int
	LastError       string
}

// PostgresHistory implements History atop GORM + PostgreSQL, for
// deployments that want a durable audit trail of Synchronizer runs
// beyond the in-memory Status map.
type PostgresHistory struct {
	db *gorm.DB
}

// NewPostgresHistory opens a connection, configures the pool, and
// migrates the SyncRun table.
func NewPostgresHistory(dsn string) (*PostgresHistory, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening postgres history db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&SyncRun{}); err != nil {
		return nil, fmt.Errorf("migrating sync run history: %w", err)
	}
	return &PostgresHistory{db: db}, nil
}

// RecordRun persists status as a SyncRun row.
func (h *PostgresHistory) RecordRun(ctx context.Context, status Status) error {
	run := SyncRun{
		RuleName: status.Rule, StartedAt: status.LastRunStartedAt,
		DurationMillis: status.LastRunDuration.Milliseconds(), Result: string(status.LastRunResult),
		ItemsConsidered: status.ItemsConsidered, ItemsApplied: status.ItemsApplied,
		ItemsVetoed: status.ItemsVetoed, ItemsDeferred: status.ItemsDeferred,
		LastError: status.LastError,
	}
	return h.db.WithContext(ctx).Create(&run).Error
}

// Close releases the underlying connection.
func (h *PostgresHistory) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
