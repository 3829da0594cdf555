package repository

import (
	"context"

	"github.com/helixir/research-registry-service/internal/domain"
)

// PublicationRepository handles publication persistence.
type PublicationRepository interface {
	// Create inserts a publication and sets its ID, Version and timestamps.
	// The payload must match the kind.
	Create(ctx context.Context, p *domain.Publication) error

	// Get returns domain.ErrNotFound if the publication does not exist.
	Get(ctx context.Context, id int64) (*domain.Publication, error)

	// Update rewrites the row, kind and payload included, if Version still
	// matches, then bumps it. Returns domain.ErrConflict on a mismatch.
	Update(ctx context.Context, p *domain.Publication) error

	// Delete removes a publication and, by cascade, its authorships.
	Delete(ctx context.Context, id int64) error

	// List returns publications matching the filter and the total count.
	List(ctx context.Context, filter PublicationFilter) ([]*domain.Publication, int64, error)

	// FindByDOI looks a publication up by DOI, case-insensitively.
	FindByDOI(ctx context.Context, doi string) (*domain.Publication, error)

	// FindTitleCandidates returns publications with the same normalized
	// title, plus every publication of year when year is non-zero.
	FindTitleCandidates(ctx context.Context, title string, year int) ([]*domain.Publication, error)
}

// PublicationFilter specifies criteria for listing publications.
type PublicationFilter struct {
	// PersonID restricts to publications authored by the person.
	PersonID int64

	// Year restricts to a publication year.
	Year int

	// Kind restricts to one publication type.
	Kind domain.PublicationType

	// IDs restricts to the given publications.
	IDs []int64

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks the filter and applies pagination defaults.
func (f *PublicationFilter) Validate() error {
	if f.Kind != "" && !f.Kind.IsConcrete() {
		return domain.NewValidationError("kind", "unknown publication type "+string(f.Kind))
	}
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
