package repository

import (
	"context"

	"github.com/helixir/research-registry-service/internal/domain"
)

// PersonRepository handles person persistence and name lookups.
type PersonRepository interface {
	// NextID reserves an id from the person sequence so callers can reference
	// a person before it is stored.
	NextID(ctx context.Context) (int64, error)

	// Create inserts a person. A non-zero ID is kept (see NextID); otherwise
	// the database assigns one. ID, Version and timestamps are set on p.
	Create(ctx context.Context, p *domain.Person) error

	// Get returns domain.ErrNotFound if the person does not exist.
	Get(ctx context.Context, id int64) (*domain.Person, error)

	// Update stores p if its Version still matches, then bumps it.
	// Returns domain.ErrConflict on a version mismatch.
	Update(ctx context.Context, p *domain.Person) error

	// Delete removes a person. Returns domain.ErrBusinessRule while rows in
	// other tables still reference it.
	Delete(ctx context.Context, id int64) error

	// List returns persons matching the filter and the total count.
	List(ctx context.Context, filter PersonFilter) ([]*domain.Person, int64, error)

	// FindByName returns persons whose normalized full name equals the
	// normalized first and last name.
	FindByName(ctx context.Context, first, last string) ([]*domain.Person, error)

	// FindByLastName returns persons sharing the normalized last name.
	FindByLastName(ctx context.Context, last string) ([]*domain.Person, error)

	// ListAll returns every person, ordered by id.
	ListAll(ctx context.Context) ([]domain.Person, error)

	// ListWithPlatformIDs returns persons with at least one external platform id.
	ListWithPlatformIDs(ctx context.Context) ([]domain.Person, error)

	// UpdateIndicators replaces the bibliometric indicators without touching
	// the version.
	UpdateIndicators(ctx context.Context, id int64, indicators domain.Indicators) error
}

// PersonFilter specifies criteria for listing persons.
type PersonFilter struct {
	// Name filters on a case-insensitive fragment of the first or last name.
	Name string

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate applies pagination defaults.
func (f *PersonFilter) Validate() error {
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
