package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
// Node, grant and user repositories issue every statement through it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxFn is a unit of work; repositories called with its ctx join the transaction
type TxFn func(ctx context.Context) error

// TransactionManager runs a TxFn atomically.
// A ctx already carrying a transaction is reused rather than nested, so access
// resolution inside a seeding transaction reads that transaction's writes.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}

type txKey struct{}

// SetTx returns a ctx that routes repository calls through tx
func SetTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTx returns the transaction carried by ctx, or nil
func GetTx(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}
