// Package storage is the persistence collaborator: learner snapshots
// as an opaque blob plus a trade journal for the operator surface.
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

// Models

// LearnerSnapshot holds the learner's serialized state. A single row
// is overwritten on every save; the blob is opaque to this layer.
type LearnerSnapshot struct {
	ID        uint `gorm:"primaryKey"`
	Blob      []byte
	UpdatedAt time.Time
}

// TradeLog is one executed (or dry-run) trade.
type TradeLog struct {
	ID         string `gorm:"primaryKey"`
	SampleID   string `gorm:"index"`
	Asset      string `gorm:"index"`
	Side       string
	Confidence int
	Quality    string
	Amount     decimal.Decimal `gorm:"type:decimal(20,6)"`
	DryRun     bool
	Outcome    *bool // nil until feedback arrives
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (t *TradeLog) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// New opens the database: a postgres DSN when given, otherwise sqlite
// at path.
func New(path, dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	if dsn != "" || strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
		if dsn == "" {
			dsn = path
		}
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 database connected (PostgreSQL)")
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("💾 database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&LearnerSnapshot{}, &TradeLog{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Learner snapshot operations. Together they satisfy learner.Store.

// Load returns the stored snapshot blob, or (nil, nil) when none
// exists yet.
func (d *Database) Load() ([]byte, error) {
	var snap LearnerSnapshot
	err := d.db.First(&snap, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap.Blob, nil
}

// Save overwrites the snapshot blob.
func (d *Database) Save(blob []byte) error {
	return d.db.Save(&LearnerSnapshot{ID: 1, Blob: blob}).Error
}

// Trade journal operations

func (d *Database) SaveTrade(t *TradeLog) error {
	return d.db.Create(t).Error
}

// MarkTradeOutcome records the settled outcome on the journal row
// matching the learner sample.
func (d *Database) MarkTradeOutcome(sampleID string, success bool) error {
	return d.db.Model(&TradeLog{}).
		Where("sample_id = ?", sampleID).
		Update("outcome", success).Error
}

func (d *Database) RecentTrades(limit int) ([]TradeLog, error) {
	var trades []TradeLog
	err := d.db.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}
