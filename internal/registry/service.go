// Package registry implements the research registry operations on top of the
// repository layer: author resolution, authorship reconciliation, person
// merges and the person, publication, membership and organization services.
//
// Every operation that writes more than one row runs inside a single
// repository.Store transaction, and the outbox events it produces are written
// in that same transaction.
package registry

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helixir/research-registry-service/internal/dedup"
	"github.com/helixir/research-registry-service/internal/observability"
	"github.com/helixir/research-registry-service/internal/outbox"
	"github.com/helixir/research-registry-service/internal/repository"
)

// FileStore is the part of the file storage the registry needs when a
// publication is deleted or changes id.
type FileStore interface {
	DeleteQuietly(ctx context.Context, publicationID int64)
	Rename(ctx context.Context, oldID, newID int64) error
}

// Service exposes the registry operations.
type Service struct {
	store      repository.Store
	comparator dedup.Comparator
	emitter    *outbox.Emitter
	resolver   *Resolver
	reconciler *Reconciler
	metrics    *observability.Metrics
	files      FileStore
	logger     zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records service metrics. Without it nothing is recorded.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithFileStore enables file cleanup on publication deletion and transform.
func WithFileStore(f FileStore) Option {
	return func(s *Service) { s.files = f }
}

// WithComparator overrides the default name and title comparator.
func WithComparator(c dedup.Comparator) Option {
	return func(s *Service) { s.comparator = c }
}

// WithEmitter overrides the default outbox emitter.
func WithEmitter(e *outbox.Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

// NewService creates a registry service backed by store.
func NewService(store repository.Store, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		comparator: dedup.DefaultComparator(),
		emitter:    outbox.NewEmitter(outbox.EmitterConfig{}),
		logger:     logger.With().Str("component", "registry").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = NewResolver(s.comparator, s.metrics)
	s.reconciler = NewReconciler(s.metrics)
	return s
}

// Store returns the underlying store.
func (s *Service) Store() repository.Store { return s.store }

// Comparator returns the comparator used for name and title matching.
func (s *Service) Comparator() dedup.Comparator { return s.comparator }

// Resolver returns the author resolver.
func (s *Service) Resolver() *Resolver { return s.resolver }

// Reconciler returns the authorship reconciler.
func (s *Service) Reconciler() *Reconciler { return s.reconciler }

// Emitter returns the outbox emitter.
func (s *Service) Emitter() *outbox.Emitter { return s.emitter }

func (s *Service) log(ctx context.Context) zerolog.Logger {
	return observability.FromContext(ctx, s.logger)
}
