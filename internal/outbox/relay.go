package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Publisher delivers a keyed message to the event bus.
type Publisher interface {
	Send(ctx context.Context, key, value []byte) error
}

// Relay drains pending outbox rows to the event bus. Delivery is
// at-least-once: a row is only marked published after the bus acks, so a
// crash between publish and mark causes a redelivery, which the consumer
// deduplicates by event ID. A batch stops at the first publish failure,
// keeping rows in insertion order on the bus: an event never overtakes
// an older event that is still awaiting retry.
type Relay struct {
	db        *Database
	publisher Publisher
	interval  time.Duration
	batchSize int
}

func NewRelay(gormDB *gorm.DB, publisher Publisher, interval time.Duration, batchSize int) *Relay {
	return &Relay{
		db:        NewDatabase(gormDB),
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start begins the relay loop
func (r *Relay) Start(ctx context.Context) {
	logger := log.With().Str("component", "outbox_relay").Logger()
	logger.Info().Dur("interval", r.interval).Msg("starting outbox relay")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down outbox relay")
			return
		case <-ticker.C:
			if err := r.relayPending(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to relay pending events")
			}
		}
	}
}

func (r *Relay) relayPending(ctx context.Context) error {
	logger := log.With().Str("component", "outbox_relay").Logger()

	events, err := r.db.GetPending(r.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := r.publisher.Send(ctx, []byte(event.Key), []byte(event.Payload)); err != nil {
			logger.Error().
				Err(err).
				Str("event_id", event.EventID).
				Int("attempts", event.Attempts+1).
				Msg("failed to publish event, will retry")
			if err := r.db.RecordFailure(event.ID); err != nil {
				logger.Error().Err(err).Str("event_id", event.EventID).Msg("failed to record publish failure")
			}
			// Stop the batch: publishing later rows past a failed one
			// would let a newer event for the same key reach the bus
			// before an older one. The whole tail retries next tick.
			return nil
		}

		if err := r.db.MarkPublished(event.ID); err != nil {
			// The event was delivered but not marked. It will be sent
			// again next tick; the consumer's dedup makes that safe.
			logger.Error().Err(err).Str("event_id", event.EventID).Msg("failed to mark event published")
			continue
		}

		logger.Debug().Str("event_id", event.EventID).Str("key", event.Key).Msg("event published")
	}

	return nil
}
