// Package domain defines the core interfaces and types for risk scoring.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a run or scored row does not exist for the tenant.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned for requests missing required identifiers.
	ErrInvalidInput = errors.New("invalid input")
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Run operations
	SaveRun(ctx context.Context, tenantID string, run *Run, scored []ScoredTransaction) error
	GetRun(ctx context.Context, tenantID string, runID string) (*Run, error)
	ListRuns(ctx context.Context, tenantID string, limit int) ([]*Run, error)

	// Scored rows of a run
	GetScoredTransaction(ctx context.Context, tenantID string, runID string, txID string) (*ScoredTransaction, error)
	ListScoredTransactions(ctx context.Context, tenantID string, runID string) ([]ScoredTransaction, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgresPort"`
	PostgresUser     string `json:"postgresUser" yaml:"postgresUser"`
	PostgresPassword string `json:"postgresPassword" yaml:"postgresPassword"`
	PostgresDB       string `json:"postgresDb" yaml:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}
