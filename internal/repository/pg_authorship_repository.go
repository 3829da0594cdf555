package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-registry-service/internal/domain"
)

var _ AuthorshipRepository = (*PgAuthorshipRepository)(nil)

// PgAuthorshipRepository is a PostgreSQL implementation of AuthorshipRepository.
type PgAuthorshipRepository struct {
	db DBTX
}

// NewPgAuthorshipRepository creates a new PostgreSQL authorship repository.
func NewPgAuthorshipRepository(db DBTX) *PgAuthorshipRepository {
	return &PgAuthorshipRepository{db: db}
}

// ListByPublication returns the authors of a publication in rank order.
func (r *PgAuthorshipRepository) ListByPublication(ctx context.Context, publicationID int64) ([]*domain.Authorship, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, person_id, publication_id, rank
		FROM authorships
		WHERE publication_id = $1
		ORDER BY rank, id`, publicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list authorships: %w", err)
	}
	return collectAuthorships(rows)
}

// ListByPerson returns the authorships held by a person.
func (r *PgAuthorshipRepository) ListByPerson(ctx context.Context, personID int64) ([]*domain.Authorship, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, person_id, publication_id, rank
		FROM authorships
		WHERE person_id = $1
		ORDER BY publication_id`, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to list authorships: %w", err)
	}
	return collectAuthorships(rows)
}

// Create inserts an authorship.
func (r *PgAuthorshipRepository) Create(ctx context.Context, a *domain.Authorship) error {
	if a == nil {
		return domain.NewValidationError("authorship", "authorship cannot be nil")
	}
	if a.Rank < 0 {
		return domain.NewValidationError("rank", "must not be negative")
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO authorships (person_id, publication_id, rank)
		VALUES ($1, $2, $3)
		RETURNING id`,
		a.PersonID, a.PublicationID, a.Rank,
	).Scan(&a.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("authorship",
				fmt.Sprintf("person %d on publication %d", a.PersonID, a.PublicationID))
		}
		if isPgForeignKeyViolation(err) {
			return domain.NewNotFoundError("person or publication",
				fmt.Sprintf("%d/%d", a.PersonID, a.PublicationID))
		}
		return fmt.Errorf("failed to create authorship: %w", err)
	}
	return nil
}

// UpdateRank changes the rank of an authorship.
func (r *PgAuthorshipRepository) UpdateRank(ctx context.Context, id int64, rank int) error {
	result, err := r.db.Exec(ctx, `UPDATE authorships SET rank = $1 WHERE id = $2`, rank, id)
	if err != nil {
		return fmt.Errorf("failed to update authorship rank: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("authorship", strconv.FormatInt(id, 10))
	}
	return nil
}

// Reassign changes the person of an authorship.
func (r *PgAuthorshipRepository) Reassign(ctx context.Context, id, personID int64) error {
	result, err := r.db.Exec(ctx, `UPDATE authorships SET person_id = $1 WHERE id = $2`, personID, id)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("authorship", fmt.Sprintf("person %d", personID))
		}
		return fmt.Errorf("failed to reassign authorship: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("authorship", strconv.FormatInt(id, 10))
	}
	return nil
}

// Delete removes an authorship.
func (r *PgAuthorshipRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM authorships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete authorship: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("authorship", strconv.FormatInt(id, 10))
	}
	return nil
}

// CountByPerson counts the authorships of a person.
func (r *PgAuthorshipRepository) CountByPerson(ctx context.Context, personID int64) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM authorships WHERE person_id = $1`, personID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count authorships: %w", err)
	}
	return n, nil
}

func collectAuthorships(rows pgx.Rows) ([]*domain.Authorship, error) {
	defer rows.Close()

	var out []*domain.Authorship
	for rows.Next() {
		var a domain.Authorship
		if err := rows.Scan(&a.ID, &a.PersonID, &a.PublicationID, &a.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan authorship: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating authorships: %w", err)
	}
	return out, nil
}
