package repository

import (
	"context"

	"github.com/helixir/research-registry-service/internal/domain"
)

// AuthorshipRepository handles the ranked links between persons and publications.
//
// Ranks of one publication are unique at commit time only, so callers may
// pass through intermediate states (a negative offset, a swap) inside a
// transaction.
type AuthorshipRepository interface {
	// ListByPublication returns the authorships of a publication ordered by rank.
	ListByPublication(ctx context.Context, publicationID int64) ([]*domain.Authorship, error)

	// ListByPerson returns the authorships of a person ordered by publication.
	ListByPerson(ctx context.Context, personID int64) ([]*domain.Authorship, error)

	// Create inserts an authorship and sets its ID.
	// Returns domain.ErrAlreadyExists if the person already authors the publication.
	Create(ctx context.Context, a *domain.Authorship) error

	// UpdateRank moves an authorship to a new rank.
	UpdateRank(ctx context.Context, id int64, rank int) error

	// Reassign points an authorship at another person.
	Reassign(ctx context.Context, id, personID int64) error

	// Delete removes an authorship.
	Delete(ctx context.Context, id int64) error

	// CountByPerson returns how many publications a person authors.
	CountByPerson(ctx context.Context, personID int64) (int, error)
}
