package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"filetree/internal/domain/repositories"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionManager implements the TransactionManager interface
type TransactionManager struct {
	pool   *pgxpool.Pool
	txOpts pgx.TxOptions
	logger *slog.Logger
}

// NewTransactionManager creates a transaction manager running read-committed transactions
func NewTransactionManager(pool *pgxpool.Pool, logger *slog.Logger) repositories.TransactionManager {
	return &TransactionManager{pool: pool, logger: logger}
}

// NewSnapshotTransactionManager creates a transaction manager whose transactions
// see one consistent snapshot (REPEATABLE READ, read only). Used by access
// resolution so an ancestor walk does not mix before/after states.
func NewSnapshotTransactionManager(pool *pgxpool.Pool, logger *slog.Logger) repositories.TransactionManager {
	return &TransactionManager{
		pool: pool,
		txOpts: pgx.TxOptions{
			IsoLevel:   pgx.RepeatableRead,
			AccessMode: pgx.ReadOnly,
		},
		logger: logger,
	}
}

// ExecTx executes a function within a transaction.
// Nested calls reuse the transaction already in the context.
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if repositories.GetTx(ctx) != nil {
		return fn(ctx)
	}

	tx, err := tm.pool.BeginTx(ctx, tm.txOpts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Rollback after commit is a no-op
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			tm.logger.Warn("rollback failed", "error", err)
		}
	}()

	if err := fn(repositories.SetTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
