package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event statuses
const (
	StatusPending   = "pending"
	StatusPublished = "published"
)

// Event is a transactional outbox row. It is written in the same
// transaction as the ledger mutation it announces, then delivered to the
// bus by the relay. A row is marked published only after the bus acks.
type Event struct {
	ID          uint       `gorm:"primaryKey"`
	EventID     string     `gorm:"uniqueIndex"`
	Key         string     // partition key, the stringified user ID
	Payload     string     // JSON-encoded types.OrderEvent
	Status      string     `gorm:"index;default:pending"`
	Attempts    int
	CreatedAt   time.Time
	PublishedAt *time.Time
}

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Enqueue writes an outbox row inside the caller's transaction. The
// returned event carries the generated event ID so callers can stamp it
// into the payload they enqueue.
func Enqueue(tx *gorm.DB, eventID, key string, payload interface{}) (*Event, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	event := &Event{
		EventID:   eventID,
		Key:       key,
		Payload:   string(encoded),
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	if err := tx.Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

// NewEventID returns a fresh unique event identifier.
func NewEventID() string {
	return uuid.New().String()
}

// GetPending returns unpublished events, oldest first.
func (d *Database) GetPending(limit int) ([]Event, error) {
	var events []Event
	if err := d.db.Where("status = ?", StatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// MarkPublished records a successful delivery.
func (d *Database) MarkPublished(id uint) error {
	now := time.Now()
	return d.db.Model(&Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       StatusPublished,
			"published_at": &now,
		}).Error
}

// RecordFailure bumps the attempt counter; the row stays pending and is
// retried on the next relay tick.
func (d *Database) RecordFailure(id uint) error {
	return d.db.Model(&Event{}).
		Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}
