package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/pkg/logger"
)

type kvEntry struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (kvEntry) TableName() string {
	return "kv_entries"
}

type PostgresStore struct {
	db  *gorm.DB
	log *logger.Logger
}

var _ ports.KVStore = (*PostgresStore)(nil)

func NewPostgresStore(dsn string, log *logger.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewGormStore(db, log)
}

// NewGormStore wraps an existing gorm connection and migrates the kv table.
func NewGormStore(db *gorm.DB, log *logger.Logger) (*PostgresStore, error) {
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv_entries: %w", err)
	}
	return &PostgresStore{db: db, log: log}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry kvEntry
	err := s.selectQuery(ctx, key, &entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return entry.Value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	entry := kvEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := s.upsertQuery(ctx, &entry).Error; err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	s.log.Debug("Store set", "backend", "postgres", "key", key)
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	if err := s.deleteQuery(ctx, key).Error; err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) selectQuery(ctx context.Context, key string, dest *kvEntry) *gorm.DB {
	return s.db.WithContext(ctx).Where("key = ?", key).First(dest)
}

func (s *PostgresStore) upsertQuery(ctx context.Context, entry *kvEntry) *gorm.DB {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entry)
}

func (s *PostgresStore) deleteQuery(ctx context.Context, key string) *gorm.DB {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&kvEntry{})
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
