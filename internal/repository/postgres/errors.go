package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories classify
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgUndefinedColumn     = "42703"
	pgUndefinedTable      = "42P01"
	pgInvalidText         = "22P02"
)

// IsPgDuplicateError checks if error is a unique constraint violation
func IsPgDuplicateError(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

// IsPgNoRowsError checks if error is a "no rows" error
func IsPgNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsPgForeignKeyError checks if error is a foreign key violation
func IsPgForeignKeyError(err error) bool {
	return pgErrorCode(err) == pgForeignKeyViolation
}

// IsPgCheckError checks if error is a CHECK constraint violation
func IsPgCheckError(err error) bool {
	return pgErrorCode(err) == pgCheckViolation
}

// IsPgSchemaError reports a missing table or column. These are never
// swallowed by repositories; schema compatibility is decided once at startup.
func IsPgSchemaError(err error) bool {
	code := pgErrorCode(err)
	return code == pgUndefinedColumn || code == pgUndefinedTable
}

// IsPgInvalidInputError checks if a parameter could not be parsed, e.g. a malformed UUID
func IsPgInvalidInputError(err error) bool {
	return pgErrorCode(err) == pgInvalidText
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
