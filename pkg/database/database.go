// Package database mirrors the attendance ledger into SQLite.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MrCodeEU/faceattend/pkg/attendance"
	"github.com/MrCodeEU/faceattend/pkg/logging"
)

// ErrClosed is returned when the store has been closed.
var ErrClosed = errors.New("database closed")

// AttendanceLog is one mirrored attendance row.
type AttendanceLog struct {
	gorm.Model
	Name      string `gorm:"uniqueIndex:idx_name_date;not null"`
	Date      string `gorm:"uniqueIndex:idx_name_date;index;not null"`
	Time      string `gorm:"not null"`
	Source    string
	SessionID string `gorm:"index"`
}

// BeforeCreate fills a missing source.
func (l *AttendanceLog) BeforeCreate(tx *gorm.DB) error {
	if l.Source == "" {
		l.Source = string(attendance.SourceCamera)
	}
	return nil
}

// Store is a SQLite-backed attendance mirror.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite file at path and migrates the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	logging.Debugf("Opening attendance database %s", path)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&AttendanceLog{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Append stores rec. It implements attendance.Mirror.
func (s *Store) Append(rec attendance.Record, source attendance.Source, session string) error {
	if s.db == nil {
		return ErrClosed
	}
	row := &AttendanceLog{
		Name:      rec.Name,
		Date:      rec.Date,
		Time:      rec.Time,
		Source:    string(source),
		SessionID: session,
	}
	if err := s.db.Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert attendance log: %w", err)
	}
	return nil
}

// Records returns the rows for date ("2006-01-02") in insertion order.
func (s *Store) Records(date string) ([]AttendanceLog, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var logs []AttendanceLog
	if err := s.db.Where("date = ?", date).Order("id").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to query attendance logs: %w", err)
	}
	return logs, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}

var _ attendance.Mirror = (*Store)(nil)
