package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-registry-service/internal/domain"
)

var _ OrganizationRepository = (*PgOrganizationRepository)(nil)

const organizationColumns = `id, acronym, name, type, country, addresses, version, created_at`

// PgOrganizationRepository is a PostgreSQL implementation of OrganizationRepository.
type PgOrganizationRepository struct {
	db DBTX
}

// NewPgOrganizationRepository creates a new PostgreSQL organization repository.
func NewPgOrganizationRepository(db DBTX) *PgOrganizationRepository {
	return &PgOrganizationRepository{db: db}
}

// Create inserts an organization.
func (r *PgOrganizationRepository) Create(ctx context.Context, o *domain.ResearchOrganization) error {
	if o == nil {
		return domain.NewValidationError("organization", "organization cannot be nil")
	}
	if err := o.Validate(); err != nil {
		return err
	}

	addresses := o.Addresses
	if addresses == nil {
		addresses = []domain.Address{}
	}
	data, err := json.Marshal(addresses)
	if err != nil {
		return fmt.Errorf("failed to marshal addresses: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO research_organizations (acronym, name, type, country, addresses)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, version, created_at`,
		nullString(o.Acronym), o.Name, string(o.Type), nullString(o.Country), data,
	).Scan(&o.ID, &o.Version, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// Get retrieves an organization by id.
func (r *PgOrganizationRepository) Get(ctx context.Context, id int64) (*domain.ResearchOrganization, error) {
	row := r.db.QueryRow(ctx, `SELECT `+organizationColumns+` FROM research_organizations WHERE id = $1`, id)

	o, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("organization", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return o, nil
}

// List returns every organization ordered by name.
func (r *PgOrganizationRepository) List(ctx context.Context) ([]*domain.ResearchOrganization, error) {
	rows, err := r.db.Query(ctx, `SELECT `+organizationColumns+` FROM research_organizations ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var out []*domain.ResearchOrganization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", err)
	}
	return out, nil
}

// AddEdge inserts a hierarchy edge.
func (r *PgOrganizationRepository) AddEdge(ctx context.Context, superID, subID int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO organization_edges (super_id, sub_id) VALUES ($1, $2)`, superID, subID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("organization edge", fmt.Sprintf("%d->%d", superID, subID))
		}
		if isPgForeignKeyViolation(err) {
			return domain.NewNotFoundError("organization", fmt.Sprintf("%d/%d", superID, subID))
		}
		return fmt.Errorf("failed to add organization edge: %w", err)
	}
	return nil
}

// RemoveEdge deletes a hierarchy edge.
func (r *PgOrganizationRepository) RemoveEdge(ctx context.Context, superID, subID int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM organization_edges WHERE super_id = $1 AND sub_id = $2`, superID, subID)
	if err != nil {
		return fmt.Errorf("failed to remove organization edge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("organization edge", fmt.Sprintf("%d->%d", superID, subID))
	}
	return nil
}

// SuperIDs returns the direct parents of id.
func (r *PgOrganizationRepository) SuperIDs(ctx context.Context, id int64) ([]int64, error) {
	return r.edgeIDs(ctx, `SELECT super_id FROM organization_edges WHERE sub_id = $1 ORDER BY super_id`, id)
}

// SubIDs returns the direct children of id.
func (r *PgOrganizationRepository) SubIDs(ctx context.Context, id int64) ([]int64, error) {
	return r.edgeIDs(ctx, `SELECT sub_id FROM organization_edges WHERE super_id = $1 ORDER BY sub_id`, id)
}

func (r *PgOrganizationRepository) edgeIDs(ctx context.Context, query string, id int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read organization edges: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan organization edge: %w", err)
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}

func scanOrganization(row pgx.Row) (*domain.ResearchOrganization, error) {
	var o domain.ResearchOrganization
	var acronym, country *string
	var orgType string
	var addresses []byte
	if err := row.Scan(&o.ID, &acronym, &o.Name, &orgType, &country, &addresses, &o.Version, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Acronym = derefString(acronym)
	o.Country = derefString(country)
	o.Type = domain.OrganizationType(orgType)
	if len(addresses) > 0 {
		if err := json.Unmarshal(addresses, &o.Addresses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal addresses: %w", err)
		}
	}
	if len(o.Addresses) == 0 {
		o.Addresses = nil
	}
	return &o, nil
}
