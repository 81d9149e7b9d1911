package matching

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ksred/exchange-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Begin opens a settlement transaction bound to the consumer context.
func (d *Database) Begin(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx).Begin()
}

// WasProcessed reports whether an event ID has already been applied.
func (d *Database) WasProcessed(tx *gorm.DB, eventID string) (bool, error) {
	var record ProcessedEvent
	if err := tx.Where("event_id = ?", eventID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkProcessed records the event ID inside the settlement transaction.
func (d *Database) MarkProcessed(tx *gorm.DB, eventID string) error {
	return tx.Create(&ProcessedEvent{
		EventID:     eventID,
		ProcessedAt: time.Now(),
	}).Error
}

// GetPendingBuyOrdersForUpdate locks and returns all pending buy orders
// for a currency, oldest first. Lock-ordering rule: order rows are
// always locked before balance rows within a transaction.
func (d *Database) GetPendingBuyOrdersForUpdate(tx *gorm.DB, symbol string) ([]types.Order, error) {
	var orders []types.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_type = ? AND currency_symbol = ? AND status = ?",
			types.OrderTypeBuy, symbol, types.OrderStatusPending).
		Order("timestamp ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderFill persists a new filled quantity and status for an order.
func (d *Database) UpdateOrderFill(tx *gorm.DB, orderID uint, filled decimal.Decimal, status string) error {
	return tx.Model(&types.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"sell_quantity": filled,
			"status":        status,
		}).Error
}

// GetBalanceForUpdate locks and returns the (user, currency) balance row,
// or nil when no row exists.
func (d *Database) GetBalanceForUpdate(tx *gorm.DB, userID int, symbol string) (*types.Balance, error) {
	var balance types.Balance
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND currency_symbol = ?", userID, symbol).
		First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// CreditBalance adds amount to an existing balance row, or inserts a new
// row when the user holds none of the currency yet.
func (d *Database) CreditBalance(tx *gorm.DB, userID int, symbol string, amount decimal.Decimal) error {
	balance, err := d.GetBalanceForUpdate(tx, userID, symbol)
	if err != nil {
		return err
	}

	if balance == nil {
		return tx.Create(&types.Balance{
			UserID:         userID,
			CurrencySymbol: symbol,
			Balance:        amount,
			Timestamp:      time.Now(),
		}).Error
	}

	return tx.Model(&types.Balance{}).
		Where("id = ?", balance.ID).
		Update("balance", balance.Balance.Add(amount)).Error
}
