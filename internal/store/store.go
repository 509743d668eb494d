// Package store opens the Postgres connections and owns the table models.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Friendship is stored in both directions so lookups only filter on user_id.
type Friendship struct {
	UserID    string `gorm:"primaryKey;size:64"`
	FriendID  string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

type DuelResult struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index;size:64;not null"`
	Mode      string `gorm:"size:16;not null"`
	Outcome   string `gorm:"size:16;not null"`
	Score     int    `gorm:"not null"`
	CreatedAt time.Time
}

type Keyword struct {
	ID     uint   `gorm:"primaryKey"`
	Word   string `gorm:"uniqueIndex;size:32;not null"`
	Active bool   `gorm:"not null;default:true"`
}

func OpenGorm(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening gorm: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Friendship{}, &DuelResult{}, &Keyword{}); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	return nil
}

// SeedKeywords inserts words that are not in the table yet.
func SeedKeywords(ctx context.Context, db *gorm.DB, words []string) error {
	if len(words) == 0 {
		return nil
	}
	rows := make([]Keyword, 0, len(words))
	for _, w := range words {
		rows = append(rows, Keyword{Word: w, Active: true})
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "word"}}, DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("seeding keywords: %w", err)
	}
	return nil
}

func OpenPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}
