package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-registry-service/internal/domain"
)

var _ MembershipRepository = (*PgMembershipRepository)(nil)

const membershipColumns = `id, person_id, organization_id, since, "to", status, permanent_position, main_position`

// PgMembershipRepository is a PostgreSQL implementation of MembershipRepository.
type PgMembershipRepository struct {
	db DBTX
}

// NewPgMembershipRepository creates a new PostgreSQL membership repository.
func NewPgMembershipRepository(db DBTX) *PgMembershipRepository {
	return &PgMembershipRepository{db: db}
}

// Create inserts a membership.
func (r *PgMembershipRepository) Create(ctx context.Context, m *domain.Membership) error {
	if m == nil {
		return domain.NewValidationError("membership", "membership cannot be nil")
	}
	if err := m.Validate(); err != nil {
		return err
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO memberships (person_id, organization_id, since, "to", status, permanent_position, main_position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		m.PersonID, m.OrganizationID, m.Since, m.To, string(m.Status), m.PermanentPosition, m.MainPosition,
	).Scan(&m.ID)
	if err != nil {
		if isPgForeignKeyViolation(err) {
			return domain.NewNotFoundError("person or organization",
				fmt.Sprintf("%d/%d", m.PersonID, m.OrganizationID))
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// Get retrieves a membership by id.
func (r *PgMembershipRepository) Get(ctx context.Context, id int64) (*domain.Membership, error) {
	row := r.db.QueryRow(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE id = $1`, id)

	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("membership", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// Delete removes a membership.
func (r *PgMembershipRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM memberships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("membership", strconv.FormatInt(id, 10))
	}
	return nil
}

// ListByPerson returns the memberships of a person.
func (r *PgMembershipRepository) ListByPerson(ctx context.Context, personID int64) ([]*domain.Membership, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE person_id = $1
		ORDER BY since NULLS FIRST, id`, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return collectMemberships(rows)
}

// ListByOrganization returns the memberships of an organization.
func (r *PgMembershipRepository) ListByOrganization(ctx context.Context, organizationID int64) ([]*domain.Membership, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE organization_id = $1
		ORDER BY since NULLS FIRST, id`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return collectMemberships(rows)
}

func scanMembership(row pgx.Row) (*domain.Membership, error) {
	var m domain.Membership
	var status string
	if err := row.Scan(&m.ID, &m.PersonID, &m.OrganizationID, &m.Since, &m.To,
		&status, &m.PermanentPosition, &m.MainPosition); err != nil {
		return nil, err
	}
	m.Status = domain.MemberStatus(status)
	return &m, nil
}

func collectMemberships(rows pgx.Rows) ([]*domain.Membership, error) {
	defer rows.Close()

	var out []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return out, nil
}
