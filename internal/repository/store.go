package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-registry-service/internal/database"
	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/outbox"
)

// EventWriter appends domain events to the outbox.
type EventWriter interface {
	Insert(ctx context.Context, event *domain.OutboxEvent) error
}

// Locker serializes work on one entity for the rest of the transaction.
type Locker interface {
	Lock(ctx context.Context, scope string, id int64) error
}

// Lock scopes.
const (
	LockScopePerson       = "person"
	LockScopePublication  = "publication"
	LockScopeOrganization = "organization_hierarchy"
)

// Repos bundles the repositories bound to one connection or transaction.
type Repos struct {
	Persons       PersonRepository
	Publications  PublicationRepository
	Authorships   AuthorshipRepository
	Memberships   MembershipRepository
	Organizations OrganizationRepository
	Venues        VenueRepository
	Relations     RelationRepository
	Events        EventWriter
	Locker        Locker
}

// Store gives access to repositories outside and inside transactions.
type Store interface {
	// Repos returns repositories running on the pool. Their Locker is a no-op.
	Repos() Repos

	// WithTx runs fn with repositories bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(r Repos) error) error
}

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// PgStore is the PostgreSQL Store.
type PgStore struct {
	db   DBTX
	txer TxRunner
}

var _ Store = (*PgStore)(nil)

// NewPgStore creates a store on db.
func NewPgStore(db *database.DB) *PgStore {
	return &PgStore{db: db, txer: db}
}

// NewPgStoreWith creates a store from its parts.
func NewPgStoreWith(db DBTX, txer TxRunner) *PgStore {
	return &PgStore{db: db, txer: txer}
}

// Repos returns pool-bound repositories.
func (s *PgStore) Repos() Repos {
	r := reposOn(s.db)
	r.Locker = noopLocker{}
	return r
}

// WithTx runs fn in a transaction.
func (s *PgStore) WithTx(ctx context.Context, fn func(r Repos) error) error {
	return s.txer.WithTransaction(ctx, func(tx pgx.Tx) error {
		return fn(reposOn(tx))
	})
}

func reposOn(db DBTX) Repos {
	return Repos{
		Persons:       NewPgPersonRepository(db),
		Publications:  NewPgPublicationRepository(db),
		Authorships:   NewPgAuthorshipRepository(db),
		Memberships:   NewPgMembershipRepository(db),
		Organizations: NewPgOrganizationRepository(db),
		Venues:        NewPgVenueRepository(db),
		Relations:     NewPgRelationRepository(db),
		Events:        outbox.NewPgStore(db),
		Locker:        pgLocker{db: db},
	}
}

// pgLocker takes transaction-scoped advisory locks.
type pgLocker struct {
	db DBTX
}

func (l pgLocker) Lock(ctx context.Context, scope string, id int64) error {
	return database.LockTx(ctx, l.db, database.LockKey(scope, id))
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string, int64) error { return nil }
