package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is the querying surface shared by a connection pool and an
	// open transaction; *sqlx.DB and *sqlx.Tx both satisfy it. All variable
	// data MUST be bound as query parameters, never concatenated into SQL.
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
		QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		Rebind(query string) string
	}

	// DB is the app-facing store handle. RunInTx is the only sanctioned way to
	// perform multi-statement writes: it begins a transaction, hands its
	// executor to fn, commits on nil error and rolls back otherwise -- the
	// connection is released on every exit path, panics included.
	DB interface {
		DBExecutor

		RunInTx(ctx context.Context, fn func(tx DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
