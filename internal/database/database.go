package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/exchange-api/internal/matching"
	"github.com/ksred/exchange-api/internal/outbox"
	"github.com/ksred/exchange-api/internal/types"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&types.Order{},
		&types.Balance{},
		&outbox.Event{},
		&matching.ProcessedEvent{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
