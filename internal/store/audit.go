package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"soundmark/internal/logging"
)

// QuerySession is the audit-trail record for one identify invocation,
// grounded on the teacher's main/db/db.go QuerySession/QueryResult
// models. It is purely additive telemetry: the Matcher's return value is
// computed independently of whether this gets persisted.
type QuerySession struct {
	ID            string `gorm:"primaryKey;type:varchar(64)"`
	QueryDuration float64
	SampleRate    int
	TotalPeaks    int
	TotalPairs    int
	TotalHashes   int
	MatchFound    bool
	BestTrackID   string
	Score         int
	Confidence    float64
	QueryTime     time.Time `gorm:"autoCreateTime"`
	ProcessTimeMs float64
}

// QueryResult is one candidate track considered during a query session.
type QueryResult struct {
	ID             uint   `gorm:"primaryKey"`
	SessionID      string `gorm:"index"`
	TrackID        string `gorm:"index"`
	MatchingHashes int
	Offset         int
	Confidence     float64
}

// AuditLog records query sessions. It is optional: a nil-safe no-op
// implementation is used when no audit DSN is configured, so identify
// never fails because telemetry storage is unavailable.
type AuditLog interface {
	RecordSession(ctx context.Context, session QuerySession, results []QueryResult) error
	Close() error
}

type gormAuditLog struct {
	db *gorm.DB
}

// NewGormAuditLog opens (and migrates) a Postgres-backed audit log via
// GORM, matching the teacher's main/db/db.go InitDB/AutoMigrate shape.
func NewGormAuditLog(dsn string) (AuditLog, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if err := db.AutoMigrate(&QuerySession{}, &QueryResult{}); err != nil {
		return nil, fmt.Errorf("migrating audit schema: %w", err)
	}
	return &gormAuditLog{db: db}, nil
}

func (a *gormAuditLog) RecordSession(ctx context.Context, session QuerySession, results []QueryResult) error {
	tx := a.db.WithContext(ctx).Create(&session)
	if tx.Error != nil {
		return tx.Error
	}
	for i := range results {
		results[i].SessionID = session.ID
	}
	if len(results) > 0 {
		if err := a.db.WithContext(ctx).CreateInBatches(&results, 1000).Error; err != nil {
			return err
		}
	}
	return nil
}

func (a *gormAuditLog) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NoopAuditLog discards session records. Used when no audit DSN is
// configured; a failure to persist telemetry never affects identify's
// exit code regardless of which implementation is in play.
type NoopAuditLog struct{}

func (NoopAuditLog) RecordSession(ctx context.Context, session QuerySession, results []QueryResult) error {
	logging.From(ctx).Debug("audit log disabled, discarding session", "session_id", session.ID)
	return nil
}

func (NoopAuditLog) Close() error { return nil }
