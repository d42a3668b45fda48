// Package store is the client's local persistence: the credential record
// that lets a session survive restarts, and a mirror of the last
// conversation list snapshot.
package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lexdrum/lexdrum/internal/chat"
	"github.com/lexdrum/lexdrum/internal/session"
)

const (
	keyToken    = "access_token"
	keyUsername = "username"
	keyIsAdmin  = "is_admin"
)

type credentialRow struct {
	Key   string `gorm:"primaryKey;size:32"`
	Value string `gorm:"type:text;not null"`
}

func (credentialRow) TableName() string { return "credentials" }

type summaryRow struct {
	ConversationID int64 `gorm:"primaryKey"`
	CreatedAt      time.Time
	Summary        string `gorm:"type:text"`
	Position       int    `gorm:"index;not null"`
}

func (summaryRow) TableName() string { return "conversation_cache" }

type Store struct {
	db *gorm.DB
}

// Open creates or migrates the local database at path. ":memory:" works for
// tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening local db: %w", err)
	}
	if err := db.AutoMigrate(&credentialRow{}, &summaryRow{}); err != nil {
		return nil, fmt.Errorf("migrating local db: %w", err)
	}
	return &Store{db: db}, nil
}

// LoadCredentials implements session.Store. ok requires both token and
// username; a malformed or absent admin entry reads as false.
func (s *Store) LoadCredentials() (session.Credentials, bool, error) {
	var rows []credentialRow
	if err := s.db.Find(&rows).Error; err != nil {
		return session.Credentials{}, false, err
	}

	var creds session.Credentials
	for _, r := range rows {
		switch r.Key {
		case keyToken:
			creds.Token = r.Value
		case keyUsername:
			creds.Username = r.Value
		case keyIsAdmin:
			v, err := strconv.ParseBool(r.Value)
			if err == nil {
				creds.IsAdmin = v
			}
		}
	}
	return creds, creds.Token != "" && creds.Username != "", nil
}

// SaveCredentials writes all three entries in one transaction, so a reader
// never observes some but not all of them after a write.
func (s *Store) SaveCredentials(creds session.Credentials) error {
	rows := []credentialRow{
		{Key: keyToken, Value: creds.Token},
		{Key: keyUsername, Value: creds.Username},
		{Key: keyIsAdmin, Value: strconv.FormatBool(creds.IsAdmin)},
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&credentialRow{}).Error; err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
}

// ClearCredentials removes the whole record. Clearing an empty store is a
// no-op.
func (s *Store) ClearCredentials() error {
	return s.db.Where("1 = 1").Delete(&credentialRow{}).Error
}

// LoadSummaries implements chat.SummaryCache, returning the mirrored list
// in its server order.
func (s *Store) LoadSummaries() ([]chat.Summary, error) {
	var rows []summaryRow
	if err := s.db.Order("position ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]chat.Summary, 0, len(rows))
	for _, r := range rows {
		items = append(items, chat.Summary{
			ConversationID: r.ConversationID,
			CreatedAt:      r.CreatedAt,
			Summary:        r.Summary,
		})
	}
	return items, nil
}

// ReplaceSummaries swaps the mirror wholesale inside one transaction.
func (s *Store) ReplaceSummaries(items []chat.Summary) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&summaryRow{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		rows := make([]summaryRow, 0, len(items))
		for i, it := range items {
			rows = append(rows, summaryRow{
				ConversationID: it.ConversationID,
				CreatedAt:      it.CreatedAt,
				Summary:        it.Summary,
				Position:       i,
			})
		}
		return tx.Create(&rows).Error
	})
}
