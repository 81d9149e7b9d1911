package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderEvent is the payload published to the order-events topic after a
// successful intake, keyed by the stringified user ID. EventID is unique
// per event and drives consumer-side deduplication.
type OrderEvent struct {
	EventID        string          `json:"event_id"`
	UserID         int             `json:"userId"`
	OrderType      string          `json:"order_type"`
	CurrencySymbol string          `json:"currency_symbol"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	Timestamp      time.Time       `json:"timestamp"`
}
