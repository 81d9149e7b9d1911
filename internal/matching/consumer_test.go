package matching

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/exchange-api/internal/types"
)

func setupConsumer(t *testing.T, remainder RemainderPolicy) (*Consumer, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Order{}, &types.Balance{}, &ProcessedEvent{}))

	return NewConsumer(db, nil, remainder), db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedBuyOrder(t *testing.T, db *gorm.DB, userID int, symbol, quantity, filled string, ts time.Time) *types.Order {
	t.Helper()

	order := &types.Order{
		UserID:         userID,
		OrderType:      types.OrderTypeBuy,
		CurrencySymbol: symbol,
		Price:          dec("5.0"),
		Quantity:       dec(quantity),
		FilledQuantity: dec(filled),
		Status:         types.OrderStatusPending,
		Timestamp:      ts,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func sellEvent(eventID string, userID int, symbol, quantity string) *types.OrderEvent {
	return &types.OrderEvent{
		EventID:        eventID,
		UserID:         userID,
		OrderType:      types.OrderTypeSell,
		CurrencySymbol: symbol,
		Price:          dec("5.0"),
		Quantity:       dec(quantity),
		Timestamp:      time.Now(),
	}
}

func buyEvent(eventID string, userID int, symbol, quantity string) *types.OrderEvent {
	return &types.OrderEvent{
		EventID:        eventID,
		UserID:         userID,
		OrderType:      types.OrderTypeBuy,
		CurrencySymbol: symbol,
		Price:          dec("5.0"),
		Quantity:       dec(quantity),
		Timestamp:      time.Now(),
	}
}

func getOrder(t *testing.T, db *gorm.DB, id uint) *types.Order {
	t.Helper()
	var order types.Order
	require.NoError(t, db.First(&order, id).Error)
	return &order
}

func TestProcessEvent_SellFillsOldestFirst(t *testing.T) {
	consumer, db := setupConsumer(t, RemainderRefund)

	now := time.Now()
	first := seedBuyOrder(t, db, 2, types.CurrencyBTC, "3", "0", now)
	second := seedBuyOrder(t, db, 3, types.CurrencyBTC, "3", "0", now.Add(time.Second))

	err := consumer.ProcessEvent(context.Background(), sellEvent("evt-1", 1, types.CurrencyBTC, "4"))
	require.NoError(t, err)

	// Oldest order filled to capacity, second gets the rest
	got := getOrder(t, db, first.ID)
	assert.True(t, got.FilledQuantity.Equal(dec("3")), "first filled = %s, want 3", got.FilledQuantity)
	assert.Equal(t, types.OrderStatusCompleted, got.Status)

	got = getOrder(t, db, second.ID)
	assert.True(t, got.FilledQuantity.Equal(dec("1")), "second filled = %s, want 1", got.FilledQuantity)
	assert.Equal(t, types.OrderStatusPending, got.Status)
}

func TestProcessEvent_FIFOFairness(t *testing.T) {
	consumer, db := setupConsumer(t, RemainderRefund)

	now := time.Now()
	older := seedBuyOrder(t, db, 2, types.CurrencyBTC, "3", "0", now)
	newer := seedBuyOrder(t, db, 3, types.CurrencyBTC, "3", "0", now.Add(time.Second))

	// The sell can fully satisfy only one order
	require.NoError(t, consumer.ProcessEvent(context.Background(), sellEvent("evt-1", 1, types.CurrencyBTC, "3")))

	got := getOrder(t, db, older.ID)
	assert.Equal(t, types.OrderStatusCompleted, got.Status)

	got = getOrder(t, db, newer.ID)
	assert.True(t, got.FilledQuantity.IsZero())
	assert.Equal(t, types.OrderStatusPending, got.Status)
}

func TestProcessEvent_SellIgnoresPrice(t *testing.T) {
	consumer, db := setupConsumer(t, RemainderRefund)

	order := &types.Order{
		UserID:         2,
		OrderType:      types.OrderTypeBuy,
		CurrencySymbol: types.CurrencyBTC,
		Price:          dec("1.5"),
		Quantity:       dec("2"),
		FilledQuantity: decimal.Zero,
		Status:         types.OrderStatusPending,
		Timestamp:      time.Now(),
	}
	require.NoError(t, db.Create(order).Error)

	// Sell priced far above the resting bid still matches: the policy is
	// FIFO over the whole queue, price is not a filter.
	event := sellEvent("evt-1", 1, types.CurrencyBTC, "2")
	event.Price = dec("9.0")
	require.NoError(t, consumer.ProcessEvent(context.Background(), event))

	got := getOrder(t, db, order.ID)
	assert.Equal(t, types.OrderStatusCompleted, got.Status)
	assert.True(t, got.FilledQuantity.Equal(dec("2")))
}

func TestProcessEvent_SellSkipsExhaustedCandidates(t *testing.T) {
	consumer, db := setupConsumer(t, RemainderRefund)

	now := time.Now()
	exhausted := seedBuyOrder(t, db, 2, types.CurrencyBTC, "2", "2", now)
	open := seedBuyOrder(t, db, 3, types.CurrencyBTC, "2", "0", now.Add(time.Second))

	require.NoError(t, consumer.ProcessEvent(context.Background(), sellEvent("evt-1", 1, types.CurrencyBTC, "2")))

	got := getOrder(t, db, exhausted.ID)
	assert.True(t, got.FilledQuantity.Equal(dec("2")), "exhausted order must not overfill")

	got = getOrder(t, db, open.ID)
	assert.True(t, got.FilledQuantity.Equal(dec("2")))
	assert.Equal(t, types.OrderStatusCompleted, got.Status)
}

func TestProcessEvent_FilledNeverExceedsQuantity(t *testing.T) {
	consumer, db := setupConsumer(t, RemainderRefund)

	order := seedBuyOrder(t, db, 2, types.CurrencyBTC, "3", "0", time.Now())

	// A sell far larger than the book
	require.NoError(t, consumer.ProcessEvent(context.Background(), sellEvent("evt-1", 1, types.CurrencyBTC, "50")))

	got := getOrder(t, db, order.ID)
	assert.True(t, got.FilledQuantity.Equal(got.Quantity))
	assert.Equal(t, types.OrderStatusCompleted, got.Status)
}

func TestProcessEvent_SellRemainderRefunded(t *testing.T) {
	consumer, db := setupConsumer(t, RemainderRefund)

	// Empty book: the whole sell quantity flows back to the seller, whose
	// balance row was consumed at intake.
	require.NoError(t, consumer.ProcessEvent(context.Background(), sellEvent("evt-1", 1, types.CurrencyBTC, "4")))

	var balance types.Balance
	require.NoError(t, db.Where("user_id = ? AND currency_symbol = ?", 1, types.CurrencyBTC).First(&balance).Error)
	assert.True(t, balance.Balance.Equal(dec("4")), "refund = %s, want 4", balance.Balance)
}

func TestProcessEvent_SellRemainderDiscarded(t *testing.T) {
	// Legacy behaviour: the excess was debited at intake and simply
	// vanishes. Kept behind RemainderDiscard for compatibility.
	consumer, db := setupConsumer(t, RemainderDiscard)

	require.NoError(t, consumer.ProcessEvent(context.Background(), sellEvent("evt-1", 1, types.CurrencyBTC, "4")))

	var count int64
	require.NoError(t, db.Model(&types.Balance{}).Count(&count).Error)
	assert.Zero(t, count, "discard policy must not credit anything")
}

func TestProcessEvent_BuyCreditsBalance(t *testing.T) {
	consumer, db := setupConsumer(t, RemainderRefund)

	// First buy inserts the row
	require.NoError(t, consumer.ProcessEvent(context.Background(), buyEvent("evt-1", 2, types.CurrencyETH, "3")))

	var balance types.Balance
	require.NoError(t, db.Where("user_id = ? AND currency_symbol = ?", 2, types.CurrencyETH).First(&balance).Error)
	assert.True(t, balance.Balance.Equal(dec("3")))

	// Second buy credits it
	require.NoError(t, consumer.ProcessEvent(context.Background(), buyEvent("evt-2", 2, types.CurrencyETH, "1.5")))

	require.NoError(t, db.Where("user_id = ? AND currency_symbol = ?", 2, types.CurrencyETH).First(&balance).Error)
	assert.True(t, balance.Balance.Equal(dec("4.5")), "balance = %s, want 4.5", balance.Balance)

	var count int64
	require.NoError(t, db.Model(&types.Balance{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestProcessEvent_ReplayIsNoOp(t *testing.T) {
	consumer, db := setupConsumer(t, RemainderRefund)

	event := buyEvent("evt-dup", 2, types.CurrencyBTC, "3")
	require.NoError(t, consumer.ProcessEvent(context.Background(), event))
	require.NoError(t, consumer.ProcessEvent(context.Background(), event))

	var balance types.Balance
	require.NoError(t, db.Where("user_id = ?", 2).First(&balance).Error)
	assert.True(t, balance.Balance.Equal(dec("3")), "replay double-credited: balance = %s", balance.Balance)
}

func TestProcessEvent_SellReplayIsNoOp(t *testing.T) {
	consumer, db := setupConsumer(t, RemainderRefund)

	order := seedBuyOrder(t, db, 2, types.CurrencyBTC, "5", "0", time.Now())

	event := sellEvent("evt-dup", 1, types.CurrencyBTC, "2")
	require.NoError(t, consumer.ProcessEvent(context.Background(), event))
	require.NoError(t, consumer.ProcessEvent(context.Background(), event))

	got := getOrder(t, db, order.ID)
	assert.True(t, got.FilledQuantity.Equal(dec("2")), "replay double-matched: filled = %s", got.FilledQuantity)
	assert.Equal(t, types.OrderStatusPending, got.Status)
}

func TestProcessEvent_SellOnlyTouchesItsCurrency(t *testing.T) {
	consumer, db := setupConsumer(t, RemainderRefund)

	btc := seedBuyOrder(t, db, 2, types.CurrencyBTC, "3", "0", time.Now())
	eth := seedBuyOrder(t, db, 3, types.CurrencyETH, "3", "0", time.Now())

	require.NoError(t, consumer.ProcessEvent(context.Background(), sellEvent("evt-1", 1, types.CurrencyETH, "3")))

	got := getOrder(t, db, btc.ID)
	assert.True(t, got.FilledQuantity.IsZero())

	got = getOrder(t, db, eth.ID)
	assert.Equal(t, types.OrderStatusCompleted, got.Status)
}

func TestProcessEvent_UnknownOrderType(t *testing.T) {
	consumer, db := setupConsumer(t, RemainderRefund)

	event := &types.OrderEvent{
		EventID:        "evt-bad",
		UserID:         1,
		OrderType:      "cancel",
		CurrencySymbol: types.CurrencyBTC,
		Quantity:       dec("1"),
	}
	require.Error(t, consumer.ProcessEvent(context.Background(), event))

	// The failed transaction must not leave an idempotency record behind
	var count int64
	require.NoError(t, db.Model(&ProcessedEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}
