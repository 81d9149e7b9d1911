package matching

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/exchange-api/internal/types"
)

// Consumer settles order events against the ledger. Events for a single
// user arrive in order (the bus partitions by user ID); events for
// different users carry no mutual ordering and are serialized only by
// the store's row locks.
type Consumer struct {
	db        *Database
	reader    *kafka.Reader
	remainder RemainderPolicy
}

// NewConsumer creates a settlement consumer. The reader may be nil when
// events are fed directly via ProcessEvent.
func NewConsumer(gormDB *gorm.DB, reader *kafka.Reader, remainder RemainderPolicy) *Consumer {
	if remainder == "" {
		remainder = RemainderRefund
	}
	return &Consumer{
		db:        NewDatabase(gormDB),
		reader:    reader,
		remainder: remainder,
	}
}

// Run consumes order events until the context is cancelled. Failed
// events are logged and committed anyway: the idempotency record rolls
// back with the transaction, so a later redelivery retries cleanly,
// while a poisoned event cannot wedge the partition.
func (c *Consumer) Run(ctx context.Context) {
	logger := log.With().Str("component", "matching_consumer").Logger()
	logger.Info().Msg("starting matching consumer")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down matching consumer")
			return
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("shutting down matching consumer")
				return
			}
			logger.Error().Err(err).Msg("failed to fetch message")
			continue
		}

		var event types.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error().Err(err).Str("key", string(msg.Key)).Msg("failed to unmarshal order event")
		} else if err := c.ProcessEvent(ctx, &event); err != nil {
			logger.Error().
				Err(err).
				Str("event_id", event.EventID).
				Int("user_id", event.UserID).
				Msg("failed to settle order event")
		}

		// The offset advances even when settlement failed: the event is
		// consumed either way, and the rolled-back idempotency record
		// leaves a true redelivery free to retry.
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Error().Err(err).Msg("failed to commit message")
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// ProcessEvent applies one order event in a single exclusive transaction.
// Replaying an already-applied event is a no-op.
func (c *Consumer) ProcessEvent(ctx context.Context, event *types.OrderEvent) error {
	logger := log.With().
		Str("component", "matching_consumer").
		Str("event_id", event.EventID).
		Int("user_id", event.UserID).
		Str("order_type", event.OrderType).
		Logger()

	tx := c.db.Begin(ctx)
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if event.EventID != "" {
		processed, err := c.db.WasProcessed(tx, event.EventID)
		if err != nil {
			tx.Rollback()
			return err
		}
		if processed {
			tx.Rollback()
			logger.Debug().Msg("event already applied, skipping")
			return nil
		}
	}

	var err error
	switch event.OrderType {
	case types.OrderTypeSell:
		err = c.settleSell(tx, event, logger)
	case types.OrderTypeBuy:
		err = c.settleBuy(tx, event)
	default:
		err = fmt.Errorf("unknown order type %q", event.OrderType)
	}
	if err != nil {
		tx.Rollback()
		return err
	}

	if event.EventID != "" {
		if err := c.db.MarkProcessed(tx, event.EventID); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit().Error
}

// settleSell matches a sell event against the pending buy orders for the
// currency under the MatchFIFOIgnorePrice policy: candidates are taken
// oldest first and the sell's price is not a filter.
func (c *Consumer) settleSell(tx *gorm.DB, event *types.OrderEvent, logger zerolog.Logger) error {
	buyOrders, err := c.db.GetPendingBuyOrdersForUpdate(tx, event.CurrencySymbol)
	if err != nil {
		return err
	}

	remaining := event.Quantity
	for i := range buyOrders {
		order := &buyOrders[i]

		unfilled := order.Quantity.Sub(order.FilledQuantity)
		if unfilled.Sign() <= 0 {
			continue
		}

		matched := decimal.Min(remaining, unfilled)
		filled := order.FilledQuantity.Add(matched)
		status := types.OrderStatusPending
		if filled.GreaterThanOrEqual(order.Quantity) {
			status = types.OrderStatusCompleted
		}

		if err := c.db.UpdateOrderFill(tx, order.ID, filled, status); err != nil {
			return err
		}

		logger.Debug().
			Uint("buy_order_id", order.ID).
			Str("matched", matched.String()).
			Str("status", status).
			Msg("matched sell against buy order")

		remaining = remaining.Sub(matched)
		if remaining.Sign() <= 0 {
			break
		}
	}

	if remaining.Sign() > 0 {
		switch c.remainder {
		case RemainderDiscard:
			logger.Warn().
				Str("remaining", remaining.String()).
				Msg("unmatched sell remainder discarded")
		default:
			if err := c.db.CreditBalance(tx, event.UserID, event.CurrencySymbol, remaining); err != nil {
				return err
			}
			logger.Debug().
				Str("remaining", remaining.String()).
				Msg("unmatched sell remainder refunded to seller")
		}
	}

	return nil
}

// settleBuy credits the bought quantity to the buyer's balance. No
// quote-currency debit occurs: the ledger tracks asset quantity only.
func (c *Consumer) settleBuy(tx *gorm.DB, event *types.OrderEvent) error {
	return c.db.CreditBalance(tx, event.UserID, event.CurrencySymbol, event.Quantity)
}
