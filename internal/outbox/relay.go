package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/helixir/research-registry-service/internal/config"
	"github.com/helixir/research-registry-service/internal/observability"
)

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Relay moves committed outbox events to the publisher.
type Relay struct {
	db        TxRunner
	publisher Publisher
	cfg       config.OutboxConfig
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewRelay creates a relay. metrics may be nil.
func NewRelay(db TxRunner, publisher Publisher, cfg config.OutboxConfig, metrics *observability.Metrics, logger zerolog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Relay{
		db:        db,
		publisher: publisher,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With().Str("component", "outbox_relay").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().Dur("poll_interval", r.cfg.PollInterval).Msg("starting outbox relay")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped via context cancellation")
			return ctx.Err()
		case <-ticker.C:
			for {
				n, err := r.PublishPending(ctx)
				if err != nil {
					r.logger.Error().Err(err).Msg("outbox relay pass failed")
					break
				}
				if n < r.cfg.BatchSize {
					break
				}
			}
		}
	}
}

// PublishPending claims one batch, publishes it and records the outcome in
// the same transaction. It returns the number of events claimed. A publish
// failure is recorded on the rows and is not returned.
func (r *Relay) PublishPending(ctx context.Context) (int, error) {
	var claimed int
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := NewPgStore(tx)

		events, err := store.ClaimPending(ctx, r.cfg.BatchSize, r.cfg.MaxRetries)
		if err != nil {
			return err
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}

		ids := make([]string, len(events))
		for i, e := range events {
			ids[i] = e.EventID
		}

		if pubErr := r.publisher.Publish(ctx, events); pubErr != nil {
			r.logger.Warn().Err(pubErr).Int("count", claimed).Msg("failed to publish outbox events")
			if r.metrics != nil {
				r.metrics.RecordOutboxFailed(claimed)
			}
			return store.MarkFailed(ctx, ids, pubErr)
		}

		if err := store.MarkPublished(ctx, ids); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.RecordOutboxPublished(claimed)
		}
		r.logger.Debug().Int("count", claimed).Msg("published outbox events")
		return nil
	})
	return claimed, err
}
