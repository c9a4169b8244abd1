package store

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"soundmark/internal/errs"
)

// OpenPostgres connects to a Postgres DSN as the Index Store backend,
// for corpora too large for a single sqlite file. Grounded directly on
// the teacher's db/postgres.go (NewPostgresClient: sql.Open("pgx", dsn),
// Ping, create tables).
func OpenPostgres(dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errs.StoreUnavailable(err)
	}
	if err := db.Ping(); err != nil {
		return nil, errs.StoreUnavailable(err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, errs.StoreUnavailable(err)
	}

	return &sqlStore{db: db, dialect: postgresDialect()}, nil
}
