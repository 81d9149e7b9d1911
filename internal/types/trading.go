package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order types
const (
	OrderTypeBuy  = "buy"
	OrderTypeSell = "sell"
)

// Order statuses. An order only ever moves from pending to completed.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
)

// Supported currencies
const (
	CurrencyBTC = "BTC"
	CurrencyETH = "ETH"
)

// User universe is closed: IDs outside this range are rejected at intake.
const (
	MinUserID = 1
	MaxUserID = 10
)

// Price bounds enforced at intake, 6 fractional digits.
var (
	MinPrice = decimal.RequireFromString("1.123456")
	MaxPrice = decimal.RequireFromString("9.123456")
)

// ValidCurrency reports whether symbol is a supported currency.
func ValidCurrency(symbol string) bool {
	return symbol == CurrencyBTC || symbol == CurrencyETH
}

// Order is a resting or settled order. FilledQuantity is only meaningful
// for buy orders: it accumulates as sell events match against the order.
type Order struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         int             `gorm:"index:idx_orders_user" json:"user_id"`
	OrderType      string          `gorm:"type:varchar(4)" json:"order_type"`
	CurrencySymbol string          `gorm:"type:varchar(10);index:idx_orders_symbol_price" json:"currency_symbol"`
	Price          decimal.Decimal `gorm:"type:decimal(20,6);index:idx_orders_symbol_price" json:"price"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,8)" json:"quantity"`
	FilledQuantity decimal.Decimal `gorm:"column:sell_quantity;type:decimal(20,8)" json:"sell_quantity"`
	Status         string          `gorm:"index:idx_orders_status;default:pending" json:"status"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Balance holds one row per (user, currency). The amount must never go
// negative after any debit.
type Balance struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         int             `gorm:"uniqueIndex:idx_balances_user_symbol" json:"user_id"`
	CurrencySymbol string          `gorm:"type:varchar(10);uniqueIndex:idx_balances_user_symbol" json:"currency_symbol"`
	Balance        decimal.Decimal `gorm:"type:decimal(20,8)" json:"balance"`
	Timestamp      time.Time       `json:"timestamp"`
}
