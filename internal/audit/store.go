package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Event is the audit_events row.
type Event struct {
	ID         uint   `gorm:"primaryKey"`
	RoomCode   string `gorm:"index;size:64;not null"`
	Version    int    `gorm:"not null"`
	Kind       string `gorm:"size:32;not null"`
	Actor      string `gorm:"size:64"`
	ProposalID string `gorm:"size:32"`
	Reason     string `gorm:"size:64"`
	Prompt     string
	CreatedAt  time.Time `gorm:"index"`
}

func (Event) TableName() string { return "audit_events" }

func toRow(e Entry) Event {
	return Event{
		RoomCode:   e.RoomCode,
		Version:    e.Version,
		Kind:       e.Kind,
		Actor:      e.Actor,
		ProposalID: e.ProposalID,
		Reason:     e.Reason,
		Prompt:     e.Prompt,
		CreatedAt:  e.At,
	}
}

// Store writes audit rows to Postgres through gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the audit table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Insert(ctx context.Context, entries []Entry) error {
	rows := make([]Event, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, toRow(e))
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert audit events: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
