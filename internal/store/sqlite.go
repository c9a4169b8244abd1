package store

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"soundmark/internal/errs"
)

// OpenSQLite opens (creating if absent) a single-file sqlite database as
// the Index Store, matching the specification's "a single file... e.g.
// an embedded SQL database" persistent store contract (§6).
func OpenSQLite(path string) (Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errs.StoreUnavailable(err)
	}
	if err := db.Ping(); err != nil {
		return nil, errs.StoreUnavailable(err)
	}
	// A single writer funnel means this connection pool never needs more
	// than one live writer; keep the pool small since sqlite serializes
	// writes internally regardless.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, errs.StoreUnavailable(err)
	}

	return &sqlStore{db: db, dialect: sqliteDialect()}, nil
}
