package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"filetree/internal/domain/repositories"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Schema *SchemaCapabilities
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Prefix      string
	Users       string
	Structure   string
	Permissions string
	Migrations  string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Prefix:      prefix,
		Users:       fmt.Sprintf("%susers", prefix),
		Structure:   fmt.Sprintf("%sstructure", prefix),
		Permissions: fmt.Sprintf("%spermissions", prefix),
		Migrations:  fmt.Sprintf("%sschema_migrations", prefix),
	}
}

// CreateConnectionPool creates a new pgx connection pool.
//
// PgBouncer in transaction pooling mode (port 6543) does not support prepared
// statements, so that port switches to QueryExecModeCacheDescribe unless the
// connection string already chose a mode via default_query_exec_mode.
//
// Table prefixes are interpolated with fmt.Sprintf before the SQL reaches the
// server, so each environment gets its own cached statements.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the appropriate query executor for the context.
// If a transaction is present in the context, it returns the transaction.
// Otherwise, it returns the provided pool.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
