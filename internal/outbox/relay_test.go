package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-registry-service/internal/config"
	"github.com/helixir/research-registry-service/internal/observability"
)

// mockTxRunner runs fn on a pgxmock transaction.
type mockTxRunner struct {
	mock pgxmock.PgxPoolIface
}

func (r mockTxRunner) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.mock.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type recordingPublisher struct {
	batches [][]PendingEvent
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, events []PendingEvent) error {
	p.batches = append(p.batches, events)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

var outboxColumns = []string{
	"id", "event_version", "aggregate_type", "aggregate_id", "event_type",
	"payload", "metadata", "created_at", "attempts",
}

func TestRelay_PublishPending(t *testing.T) {
	ctx := context.Background()
	cfg := config.OutboxConfig{PollInterval: time.Second, BatchSize: 10, MaxRetries: 3}

	t.Run("publishes and marks events", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		metrics := observability.NewMetrics("test_relay_published")
		pub := &recordingPublisher{}
		relay := NewRelay(mockTxRunner{mock}, pub, cfg, metrics, zerolog.Nop())

		mock.ExpectBegin()
		mock.ExpectQuery("FROM outbox_events").WithArgs(3, 10).
			WillReturnRows(pgxmock.NewRows(outboxColumns).
				AddRow("e1", 1, "person", "7", "person.merged", []byte(`{}`), []byte(`{}`), time.Now(), 0))
		mock.ExpectExec("SET published_at").WithArgs([]string{"e1"}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		n, err := relay.PublishPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, pub.batches, 1)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.OutboxPublished))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("records publish failure and commits", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		metrics := observability.NewMetrics("test_relay_failed")
		pub := &recordingPublisher{err: errors.New("broker down")}
		relay := NewRelay(mockTxRunner{mock}, pub, cfg, metrics, zerolog.Nop())

		mock.ExpectBegin()
		mock.ExpectQuery("FROM outbox_events").WithArgs(3, 10).
			WillReturnRows(pgxmock.NewRows(outboxColumns).
				AddRow("e1", 1, "person", "7", "person.merged", []byte(`{}`), []byte(`{}`), time.Now(), 1))
		mock.ExpectExec("SET attempts").WithArgs("broker down", []string{"e1"}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		n, err := relay.PublishPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.OutboxFailed))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing pending", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		pub := &recordingPublisher{}
		relay := NewRelay(mockTxRunner{mock}, pub, cfg, nil, zerolog.Nop())

		mock.ExpectBegin()
		mock.ExpectQuery("FROM outbox_events").WithArgs(3, 10).
			WillReturnRows(pgxmock.NewRows(outboxColumns))
		mock.ExpectCommit()

		n, err := relay.PublishPending(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, pub.batches)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	relay := NewRelay(mockTxRunner{mock}, &recordingPublisher{}, config.OutboxConfig{PollInterval: time.Hour}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, relay.Run(ctx), context.Canceled)
}

func TestNewRelay_Defaults(t *testing.T) {
	relay := NewRelay(nil, nil, config.OutboxConfig{}, nil, zerolog.Nop())
	assert.Equal(t, time.Second, relay.cfg.PollInterval)
	assert.Equal(t, 100, relay.cfg.BatchSize)
	assert.Equal(t, 5, relay.cfg.MaxRetries)
}
