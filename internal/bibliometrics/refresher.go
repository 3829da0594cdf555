package bibliometrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/repository"
)

// RefreshReport tells which platforms a refresh updated for one person.
type RefreshReport struct {
	PersonID int64             `json:"person_id"`
	Updated  []domain.Platform `json:"updated"`
	Failed   []domain.Platform `json:"failed,omitempty"`
	Skipped  []domain.Platform `json:"skipped,omitempty"`
}

// Summary aggregates a RefreshAll run.
type Summary struct {
	Persons  int `json:"persons"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
	Duration time.Duration
}

// Refresher updates person indicators from the configured sources.
type Refresher struct {
	store       repository.Store
	sources     []Source
	concurrency int
	metrics     *observability.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithConcurrency bounds how many persons RefreshAll handles at once.
func WithConcurrency(n int) RefresherOption {
	return func(r *Refresher) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMetrics records platform requests.
func WithMetrics(m *observability.Metrics) RefresherOption {
	return func(r *Refresher) { r.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher creates a Refresher over the enabled sources.
func NewRefresher(store repository.Store, sources []Source, logger zerolog.Logger, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		store:       store,
		concurrency: 4,
		logger:      logger.With().Str("component", "bibliometrics").Logger(),
		now:         time.Now,
	}
	for _, s := range sources {
		if s != nil && s.IsEnabled() {
			r.sources = append(r.sources, s)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Platforms lists the platforms this refresher queries.
func (r *Refresher) Platforms() []domain.Platform {
	out := make([]domain.Platform, len(r.sources))
	for i, s := range r.sources {
		out[i] = s.Platform()
	}
	return out
}

// RefreshByID loads a person and refreshes them.
func (r *Refresher) RefreshByID(ctx context.Context, personID int64) (*RefreshReport, error) {
	p, err := r.store.Repos().Persons.Get(ctx, personID)
	if err != nil {
		return nil, err
	}
	return r.Refresh(ctx, p)
}

// Refresh queries every source for person concurrently and stores the
// indicators that were fetched. Platform failures are logged and reported,
// never returned; only a failure to store the result is an error. person's
// Indicators are updated in place.
func (r *Refresher) Refresh(ctx context.Context, person *domain.Person) (*RefreshReport, error) {
	report := &RefreshReport{PersonID: person.ID}
	results := make([]*domain.Indicator, len(r.sources))
	outcomes := make([]error, len(r.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range r.sources {
		g.Go(func() error {
			start := time.Now()
			ind, err := src.FetchIndicator(gctx, *person)
			if errors.Is(err, ErrNoIdentifier) {
				outcomes[i] = err
				return nil
			}
			if r.metrics != nil {
				r.metrics.RecordBibliometricRequest(string(src.Platform()), err, time.Since(start))
			}
			if err != nil {
				logger := observability.WithPlatformContext(r.logger, string(src.Platform()))
				logger.Warn().Err(err).Int64("person_id", person.ID).Msg("indicator fetch failed")
				outcomes[i] = err
				return nil
			}
			results[i] = ind
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, src := range r.sources {
		switch {
		case errors.Is(outcomes[i], ErrNoIdentifier):
			report.Skipped = append(report.Skipped, src.Platform())
		case outcomes[i] != nil || results[i] == nil:
			report.Failed = append(report.Failed, src.Platform())
		default:
			ind := *results[i]
			if ind.UpdatedAt.IsZero() {
				ind.UpdatedAt = r.now().UTC()
			}
			person.SetIndicator(src.Platform(), ind)
			report.Updated = append(report.Updated, src.Platform())
		}
	}

	if len(report.Updated) == 0 {
		return report, nil
	}
	if err := r.store.Repos().Persons.UpdateIndicators(ctx, person.ID, person.Indicators); err != nil {
		return report, fmt.Errorf("store indicators of person %d: %w", person.ID, err)
	}
	return report, nil
}

// RefreshAll refreshes every person known to at least one platform, at most
// concurrency at a time. Storage errors are logged and counted; the run
// only stops early when ctx is done.
func (r *Refresher) RefreshAll(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}
	if len(r.sources) == 0 {
		return summary, nil
	}

	persons, err := r.store.Repos().Persons.ListWithPlatformIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	summary.Persons = len(persons)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range persons {
		p := &persons[i]
		g.Go(func() error {
			report, err := r.Refresh(gctx, p)
			mu.Lock()
			defer mu.Unlock()
			if report != nil {
				summary.Updated += len(report.Updated)
				summary.Failed += len(report.Failed)
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				summary.Errors++
				logger := observability.WithPersonContext(r.logger, p.ID)
				logger.Error().Err(err).Msg("indicator refresh failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	summary.Duration = time.Since(start)
	r.logger.Info().
		Int("persons", summary.Persons).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Int("errors", summary.Errors).
		Dur("duration", summary.Duration).
		Msg("indicator refresh completed")
	return summary, nil
}
