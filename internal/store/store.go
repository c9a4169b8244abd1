// Package store implements the Index Store: a persistent hash -> postings
// multimap with batched idempotent append and indexed lookup, grounded on
// the teacher's db/postgres.go (StoreFingerprints' batched multi-row
// "ON CONFLICT DO NOTHING" insert, GetCouples' "= ANY($1)" batch lookup).
//
// Two concrete backends implement Store: a sqlite-backed one (the
// specification's "single portable file... e.g. an embedded SQL
// database") and a Postgres-backed one for larger corpora, both sharing
// the same database/sql-based shape.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"soundmark/internal/config"
	"soundmark/internal/errs"
)

// Posting is one (hash, offset, track_id) row returned from a lookup.
type Posting struct {
	Hash    uint32
	Offset  int
	TrackID string
}

// Track is a reference recording's identity.
type Track struct {
	ID    string
	Label string
}

// AppendBatch is the unit of work handed to append_postings: all
// postings for one track, committed atomically.
type AppendBatch struct {
	Track    Track
	Postings []Posting // Offset and Hash only; TrackID is redundant here
}

// Store is the Index Store's logical contract (spec §4.4).
type Store interface {
	// AppendPostings atomically writes every posting for one track. If
	// the track id already exists and replace is false, it returns
	// ErrAlreadyExists and writes nothing (idempotent append). If
	// replace is true, existing postings for that track are atomically
	// swapped out for the new set.
	AppendPostings(ctx context.Context, batch AppendBatch, replace bool) error

	// Lookup returns every posting whose hash is in hashes. Order is
	// unspecified.
	Lookup(ctx context.Context, hashes []uint32) ([]Posting, error)

	// TrackExists reports whether a track id has already been ingested.
	TrackExists(ctx context.Context, trackID string) (bool, error)

	// Tracks lists every ingested track.
	Tracks(ctx context.Context) ([]Track, error)

	// DeleteTrack removes a track and all its postings.
	DeleteTrack(ctx context.Context, trackID string) error

	// Stats reports corpus-level counts for the `stats` CLI verb.
	Stats(ctx context.Context) (Stats, error)

	// SavedParams returns the config.Params persisted at the most
	// recent build, or ok=false if the store has never been built.
	SavedParams(ctx context.Context) (p config.Params, ok bool, err error)

	// SaveParams persists the config.Params to use for ParamsMismatch
	// checking on subsequent queries. Only the first call (or a call
	// against an empty store) should normally change it.
	SaveParams(ctx context.Context, p config.Params) error

	Close() error
}

// Stats mirrors the teacher's GetDatabaseStats map, as a typed struct.
type Stats struct {
	TotalTracks       int
	TotalFingerprints int
}

// ErrAlreadyExists is returned by AppendPostings when a non-replace
// append targets a track id that's already present.
var ErrAlreadyExists = errs.New(errs.KindStore, "TrackAlreadyExists", "track already ingested", nil)

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	track_id TEXT PRIMARY KEY,
	label TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fingerprints (
	hash BIGINT NOT NULL,
	"offset" INTEGER NOT NULL,
	track_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_hash ON fingerprints (hash);
CREATE INDEX IF NOT EXISTS idx_fingerprints_track ON fingerprints (track_id);

CREATE TABLE IF NOT EXISTS build_params (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	params_json TEXT NOT NULL,
	updated_at TIMESTAMP
);
`

// sqlStore is the shared database/sql-based implementation; placeholder
// style (? vs $N) and upsert syntax differ slightly between sqlite and
// postgres, captured in the dialect field.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

type dialect struct {
	name          string
	placeholder   func(i int) string
	upsertNothing string // appended after the VALUES list's column spec
}

func sqliteDialect() dialect {
	return dialect{
		name:          "sqlite",
		placeholder:   func(int) string { return "?" },
		upsertNothing: "",
	}
}

func postgresDialect() dialect {
	return dialect{
		name:          "postgres",
		placeholder:   func(i int) string { return fmt.Sprintf("$%d", i) },
		upsertNothing: "",
	}
}

const batchSize = 5000

func (s *sqlStore) AppendPostings(ctx context.Context, batch AppendBatch, replace bool) error {
	exists, err := s.TrackExists(ctx, batch.Track.ID)
	if err != nil {
		return err
	}
	if exists && !replace {
		return ErrAlreadyExists
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.StoreUnavailable(err)
	}
	defer tx.Rollback()

	if exists && replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fingerprints WHERE track_id = `+s.ph(1), batch.Track.ID); err != nil {
			return errs.StoreUnavailable(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE track_id = `+s.ph(1), batch.Track.ID); err != nil {
			return errs.StoreUnavailable(err)
		}
	}

	upsertTrack := fmt.Sprintf(`INSERT INTO tracks (track_id, label) VALUES (%s, %s)`, s.ph(1), s.ph(2))
	if s.dialect.name == "sqlite" {
		upsertTrack = `INSERT OR IGNORE INTO tracks (track_id, label) VALUES (?, ?)`
	} else {
		upsertTrack += ` ON CONFLICT (track_id) DO NOTHING`
	}
	if _, err := tx.ExecContext(ctx, upsertTrack, batch.Track.ID, batch.Track.Label); err != nil {
		return errs.StoreUnavailable(err)
	}

	for start := 0; start < len(batch.Postings); start += batchSize {
		end := start + batchSize
		if end > len(batch.Postings) {
			end = len(batch.Postings)
		}
		chunk := batch.Postings[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO fingerprints (hash, "offset", track_id) VALUES `)
		args := make([]any, 0, len(chunk)*3)
		for i, p := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			base := i * 3
			sb.WriteString(fmt.Sprintf("(%s,%s,%s)", s.ph(base+1), s.ph(base+2), s.ph(base+3)))
			args = append(args, int64(p.Hash), p.Offset, batch.Track.ID)
		}

		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return errs.StoreUnavailable(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.StoreUnavailable(err)
	}
	return nil
}

func (s *sqlStore) ph(i int) string { return s.dialect.placeholder(i) }

func (s *sqlStore) Lookup(ctx context.Context, hashes []uint32) ([]Posting, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`SELECT hash, "offset", track_id FROM fingerprints WHERE hash IN (`)
	args := make([]any, len(hashes))
	for i, h := range hashes {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(s.ph(i + 1))
		args[i] = int64(h)
	}
	sb.WriteString(")")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, errs.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []Posting
	for rows.Next() {
		var p Posting
		var h int64
		if err := rows.Scan(&h, &p.Offset, &p.TrackID); err != nil {
			return nil, errs.StoreUnavailable(err)
		}
		p.Hash = uint32(h)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqlStore) TrackExists(ctx context.Context, trackID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks WHERE track_id = `+s.ph(1), trackID).Scan(&count)
	if err != nil {
		return false, errs.StoreUnavailable(err)
	}
	return count > 0, nil
}

func (s *sqlStore) Tracks(ctx context.Context) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT track_id, label FROM tracks ORDER BY track_id`)
	if err != nil {
		return nil, errs.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.Label); err != nil {
			return nil, errs.StoreUnavailable(err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeleteTrack(ctx context.Context, trackID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.StoreUnavailable(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fingerprints WHERE track_id = `+s.ph(1), trackID); err != nil {
		return errs.StoreUnavailable(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE track_id = `+s.ph(1), trackID); err != nil {
		return errs.StoreUnavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return errs.StoreUnavailable(err)
	}
	return nil
}

func (s *sqlStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&st.TotalTracks); err != nil {
		return st, errs.StoreUnavailable(err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fingerprints`).Scan(&st.TotalFingerprints); err != nil {
		return st, errs.StoreUnavailable(err)
	}
	return st, nil
}

func (s *sqlStore) SavedParams(ctx context.Context) (config.Params, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT params_json FROM build_params WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return config.Params{}, false, nil
	}
	if err != nil {
		return config.Params{}, false, errs.StoreUnavailable(err)
	}
	var p config.Params
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return config.Params{}, false, errs.Internal("corrupt build_params", err)
	}
	return p, true, nil
}

func (s *sqlStore) SaveParams(ctx context.Context, p config.Params) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return errs.Internal("marshal params", err)
	}
	var q string
	if s.dialect.name == "sqlite" {
		q = `INSERT INTO build_params (id, params_json, updated_at) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET params_json = excluded.params_json, updated_at = excluded.updated_at`
	} else {
		q = `INSERT INTO build_params (id, params_json, updated_at) VALUES (1, $1, $2)
			ON CONFLICT (id) DO UPDATE SET params_json = excluded.params_json, updated_at = excluded.updated_at`
	}
	_, err = s.db.ExecContext(ctx, q, string(raw), time.Now())
	if err != nil {
		return errs.StoreUnavailable(err)
	}
	return nil
}

func (s *sqlStore) Close() error { return s.db.Close() }
