// Package db provides durable storage.Adapter implementations.
package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"Chatter/pkg/storage"
)

// Blob is one stored key/value pair.
type Blob struct {
	Key       string    `gorm:"column:blob_key;primarykey" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"` // JSON document
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName overrides the table name used by Blob to 'blobs'
func (Blob) TableName() string {
	return "blobs"
}

// SQLiteStore keeps blobs in a single SQLite table.
type SQLiteStore struct {
	db *gorm.DB
}

// DefaultSQLitePath returns <UserConfigDir>/Chatter/chatter.db.
func DefaultSQLitePath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config dir: %w", err)
	}
	return filepath.Join(configDir, "Chatter", "chatter.db"), nil
}

// OpenSQLite opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("could not create db directory: %w", err)
		}
	}

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// An in-memory database lives per connection; pin the pool to one.
	if path == ":memory:" {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := gdb.AutoMigrate(&Blob{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database schema: %w", err)
	}
	return &SQLiteStore{db: gdb}, nil
}

func (s *SQLiteStore) Load(key string) ([]byte, error) {
	var b Blob
	err := s.db.Where("blob_key = ?", key).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(b.Value), nil
}

func (s *SQLiteStore) Save(key string, value []byte) error {
	b := Blob{Key: key, Value: string(value), UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "blob_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&b).Error
}

func (s *SQLiteStore) Remove(key string) error {
	return s.db.Where("blob_key = ?", key).Delete(&Blob{}).Error
}

// Keys lists every stored key in ascending order.
func (s *SQLiteStore) Keys() ([]string, error) {
	var keys []string
	if err := s.db.Model(&Blob{}).Order("blob_key").Pluck("blob_key", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
