package intake

import (
	"context"
	"errors"

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

// Begin opens an intake transaction bound to the request context, so
// caller cancellation aborts the transaction instead of being ignored.
func (d *Database) Begin(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx).Begin()
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

// DebitBalance subtracts amount from a locked balance row.
func (d *Database) DebitBalance(tx *gorm.DB, balance *types.Balance, amount decimal.Decimal) error {
	return tx.Model(&types.Balance{}).
		Where("id = ?", balance.ID).
		Update("balance", balance.Balance.Sub(amount)).Error
}

// GetPendingBuyOrderForUpdate locks and returns the pending buy order
// matching (user, currency, price) exactly, or nil when none rests.
func (d *Database) GetPendingBuyOrderForUpdate(tx *gorm.DB, userID int, symbol string, price decimal.Decimal) (*types.Order, error) {
	var order types.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND order_type = ? AND currency_symbol = ? AND price = ? AND status = ?",
			userID, types.OrderTypeBuy, symbol, price, types.OrderStatusPending).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// IncrementOrderQuantity aggregates a repeat buy into the locked resting
// order.
func (d *Database) IncrementOrderQuantity(tx *gorm.DB, order *types.Order, amount decimal.Decimal) error {
	return tx.Model(&types.Order{}).
		Where("id = ?", order.ID).
		Update("quantity", order.Quantity.Add(amount)).Error
}

// CreateOrder inserts a new resting order.
func (d *Database) CreateOrder(tx *gorm.DB, order *types.Order) error {
	return tx.Create(order).Error
}

// GetBalances lists a user's balance rows, optionally filtered by symbol.
func (d *Database) GetBalances(userID int, symbol string) ([]types.Balance, error) {
	query := d.db.Where("user_id = ?", userID)
	if symbol != "" {
		query = query.Where("currency_symbol = ?", symbol)
	}

	var balances []types.Balance
	if err := query.Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

// GetOrders lists orders, newest first, optionally filtered by user and
// symbol.
func (d *Database) GetOrders(userID int, symbol string) ([]types.Order, error) {
	query := d.db.Order("timestamp DESC")
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	if symbol != "" {
		query = query.Where("currency_symbol = ?", symbol)
	}

	var orders []types.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
