package matching

import "time"

// RemainderPolicy decides what happens to the part of a sell event that
// finds no resting buy order to match against. The asset was already
// debited at intake, so discarding the remainder loses it.
type RemainderPolicy string

const (
	// RemainderRefund credits the leftover back to the seller's balance
	// inside the settlement transaction.
	RemainderRefund RemainderPolicy = "refund"
	// RemainderDiscard drops the leftover, preserving the legacy
	// behaviour of the original service.
	RemainderDiscard RemainderPolicy = "discard"
)

// MatchPolicy names the candidate-selection rule used when settling a
// sell event.
type MatchPolicy string

// MatchFIFOIgnorePrice matches against all pending buy orders for the
// currency in timestamp order, regardless of their limit price relative
// to the sell. This is the current product behaviour: sells act as
// market orders against the FIFO queue.
const MatchFIFOIgnorePrice MatchPolicy = "fifo_ignore_price"

// ProcessedEvent records an applied event ID. It is written in the same
// transaction as the settlement mutation, so a redelivered event is a
// no-op.
type ProcessedEvent struct {
	ID          uint   `gorm:"primaryKey"`
	EventID     string `gorm:"uniqueIndex"`
	ProcessedAt time.Time
}
