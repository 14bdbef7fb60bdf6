// Package archive keeps a write-only audit trail of accepted turns. Nothing
// reads it back into the relay; sessions still live only in memory.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/blokus-relay/internal/turn"
)

// TurnRecord is one accepted turn. SessionID distinguishes two sessions that
// reused the same game id over the life of the archive.
type TurnRecord struct {
	ID         uint   `gorm:"primaryKey"`
	GameID     string `gorm:"index;not null"`
	SessionID  string `gorm:"uniqueIndex:idx_session_turn;not null"`
	TurnIndex  int    `gorm:"uniqueIndex:idx_session_turn;not null"`
	Player     int    `gorm:"not null"`
	IsPass     bool   `gorm:"not null"`
	Piece      *int
	Flipped    bool
	Rotations  int
	Row        *int
	Col        *int
	AcceptedAt time.Time `gorm:"not null"`
}

func NewRecord(gameID, sessionID string, index int, t turn.Turn, at time.Time) TurnRecord {
	rec := TurnRecord{
		GameID:     gameID,
		SessionID:  sessionID,
		TurnIndex:  index,
		Player:     int(t.Player),
		IsPass:     t.Pass,
		AcceptedAt: at.UTC(),
	}
	if !t.Pass {
		piece, row, col := t.Piece, t.Position.Row, t.Position.Col
		rec.Piece = &piece
		rec.Flipped = t.Flipped
		rec.Rotations = t.Rotations
		rec.Row = &row
		rec.Col = &col
	}
	return rec
}

type Store interface {
	Save(ctx context.Context, records []TurnRecord) error
	Close() error
}

type gormStore struct {
	db *gorm.DB
}

const sqlitePrefix = "sqlite:"

// Open picks the driver from dsn: "sqlite:<path>" uses SQLite, anything else
// is handed to Postgres.
func Open(dsn string, logger *zap.Logger) (Store, error) {
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		return open(sqlite.Open(path), "sqlite", logger)
	}
	return OpenPostgres(dsn, logger)
}

// OpenPostgres connects through gorm's pgx-backed postgres driver and migrates the schema.
func OpenPostgres(dsn string, logger *zap.Logger) (Store, error) {
	return open(postgres.Open(dsn), "postgres", logger)
}

func open(dialector gorm.Dialector, driver string, logger *zap.Logger) (Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s archive: %w", driver, err)
	}
	if err := db.AutoMigrate(&TurnRecord{}); err != nil {
		return nil, fmt.Errorf("migrate %s archive: %w", driver, err)
	}
	logger.Info("turn archive ready", zap.String("driver", driver))
	return &gormStore{db: db}, nil
}

func (s *gormStore) Save(ctx context.Context, records []TurnRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&records).Error
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
